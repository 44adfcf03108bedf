package framework

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Waker is an eventfd that other goroutines use to make the reactor
// return from its wait.
type Waker struct {
	fd int
}

// NewWaker creates a non-blocking eventfd.
func NewWaker() (*Waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &Waker{fd: fd}, nil
}

// Fd returns the eventfd.
func (w *Waker) Fd() int {
	return w.fd
}

// Wake makes the eventfd readable. Safe for concurrent use.
func (w *Waker) Wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(w.fd, buf[:])
	if err == unix.EAGAIN {
		// counter saturated, already readable
		return nil
	}
	return err
}

// Consume resets the eventfd counter and returns the number of
// wakes since the last Consume.
func (w *Waker) Consume() (uint64, error) {
	var buf [8]byte
	_, err := unix.Read(w.fd, buf[:])
	if err == unix.EAGAIN {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}

// Close implements io.Closer.
func (w *Waker) Close() error {
	if w.fd < 0 {
		return nil
	}
	err := unix.Close(w.fd)
	w.fd = -1
	return err
}
