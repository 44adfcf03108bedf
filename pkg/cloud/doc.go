// Package cloud implements the gateway side of the IoTConnect control
// channel: the hello/handshake session, device twin configuration and
// the telemetry publisher that wraps payloads in the session envelope.
//
// Everything in this package runs on the reactor thread. Transports
// deliver their callbacks as Events through an EventSink (a mailbox)
// instead of calling in directly.
package cloud
