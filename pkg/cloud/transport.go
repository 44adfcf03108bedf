package cloud

import (
	"errors"
	"fmt"

	fx "github.com/robotalks/beacongw/pkg/framework"
)

var (
	// ErrWouldBlock is returned when the transport cannot accept more
	// data right now.
	ErrWouldBlock = errors.New("would block")
	// ErrNotReady is returned when publishing before the handshake
	// completed and the payload was dropped.
	ErrNotReady = errors.New("session not ready")
	// ErrQueueFull is returned when the publisher queue overflowed and
	// the payload was dropped.
	ErrQueueFull = errors.New("publish queue full")
)

// EventKind classifies transport events.
type EventKind int

// Transport events.
const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	// EventMessage is a cloud-to-device message.
	EventMessage
	// EventTwin is a device twin desired-properties document or patch.
	EventTwin
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	case EventTwin:
		return "twin"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is posted by a transport from its own goroutine.
type Event struct {
	Kind    EventKind
	Payload []byte
}

// EventSink receives transport events. framework.Mailbox implements it.
type EventSink interface {
	Post(fx.Message)
}

// Sender sends device-to-cloud messages without blocking.
type Sender interface {
	// SendTelemetry returns ErrWouldBlock when the message cannot be
	// queued for transmission now.
	SendTelemetry([]byte) error
}

// Transport is a connection to the cloud.
type Transport interface {
	Sender
	// Start begins connecting in the background. Connection changes
	// and inbound messages are posted as Events.
	Start() error
	// ReportTwin publishes reported properties.
	ReportTwin([]byte) error
	Close() error
}

// Observer receives counters from the session and the publisher.
type Observer interface {
	HelloSent()
	SessionStateChanged(State)
	TelemetryPublished()
	TelemetryDropped(cause string)
	TelemetryQueued(depth int)
}

// NopObserver ignores everything.
type NopObserver struct{}

// HelloSent implements Observer.
func (NopObserver) HelloSent() {}

// SessionStateChanged implements Observer.
func (NopObserver) SessionStateChanged(State) {}

// TelemetryPublished implements Observer.
func (NopObserver) TelemetryPublished() {}

// TelemetryDropped implements Observer.
func (NopObserver) TelemetryDropped(string) {}

// TelemetryQueued implements Observer.
func (NopObserver) TelemetryQueued(int) {}
