// Package serial frames the newline-delimited record stream coming
// from the BLE co-processor over a UART.
//
// Bytes are accumulated in a fixed-capacity ring. Every complete line
// is delivered as one contiguous record without its separator. When a
// read would overflow the ring, everything buffered is purged together
// with the new chunk and framing restarts at the next newline-terminated
// record, so a lost separator costs at most one ring of data.
package serial
