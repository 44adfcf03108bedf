package serial

import "errors"

var (
	// ErrOverrun indicates a chunk did not fit into the ring and the
	// ring was purged.
	ErrOverrun = errors.New("ring overrun")
	// ErrWouldBlock indicates the descriptor has no data or no room.
	ErrWouldBlock = errors.New("would block")
	// ErrClosed indicates the peer closed the stream.
	ErrClosed = errors.New("stream closed")
)
