package serial

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// WritePollTimeout bounds the wait for room when a write would block.
var WritePollTimeout = 100 * time.Millisecond

// Stats counts channel events.
type Stats struct {
	Records  uint64
	Overruns uint64
	Bytes    uint64
}

// Channel frames records from a non-blocking file descriptor.
type Channel struct {
	Handler RecordHandler
	// OnOverrun is called after the ring was purged.
	OnOverrun func()

	fd      int
	ring    *Ring
	scratch []byte
	stats   Stats
}

// NewChannel wraps fd, which must be in non-blocking mode.
func NewChannel(fd int, capacity int, h RecordHandler) *Channel {
	ring := NewRing(capacity)
	return &Channel{
		Handler: h,
		fd:      fd,
		ring:    ring,
		scratch: make([]byte, ring.Cap()),
	}
}

// Fd returns the underlying descriptor.
func (c *Channel) Fd() int {
	return c.fd
}

// Stats returns counters.
func (c *Channel) Stats() Stats {
	return c.stats
}

// ReadNonblocking reads what is available into buf. It returns
// ErrWouldBlock when nothing is available and ErrClosed on EOF.
func (c *Channel) ReadNonblocking(buf []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, buf)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, ErrWouldBlock
		case err != nil:
			return 0, fmt.Errorf("read fd %d: %w", c.fd, err)
		case n == 0 && len(buf) > 0:
			return 0, ErrClosed
		}
		return n, nil
	}
}

// WriteAll writes buf completely, retrying short writes. It returns
// the number of write calls issued. When the descriptor is full it
// waits up to WritePollTimeout for POLLOUT, so it must not be called
// from a reactor handler.
func (c *Channel) WriteAll(buf []byte) (int, error) {
	iterations := 0
	for len(buf) > 0 {
		iterations++
		n, err := unix.Write(c.fd, buf)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			if err := c.waitWritable(); err != nil {
				return iterations, err
			}
			continue
		case err != nil:
			return iterations, fmt.Errorf("write fd %d: %w", c.fd, err)
		}
		buf = buf[n:]
	}
	return iterations, nil
}

func (c *Channel) waitWritable() error {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
	n, err := unix.Poll(fds, int(WritePollTimeout/time.Millisecond))
	if err != nil && err != unix.EINTR {
		return fmt.Errorf("poll fd %d: %w", c.fd, err)
	}
	if n == 0 && err == nil {
		return ErrWouldBlock
	}
	return nil
}

// Drain performs one read of up to the ring capacity and feeds the
// ring. It is the reactor handler body for a readable UART. Overruns
// are absorbed and reported through OnOverrun.
func (c *Channel) Drain() error {
	n, err := c.ReadNonblocking(c.scratch)
	if err == ErrWouldBlock {
		return nil
	}
	if err != nil {
		return err
	}
	c.stats.Bytes += uint64(n)
	err = c.ring.Feed(c.scratch[:n], HandleRecordFunc(c.deliver))
	if err == ErrOverrun {
		c.stats.Overruns++
		glog.Warningf("uart: ring overrun, purged %d-byte chunk", n)
		if c.OnOverrun != nil {
			c.OnOverrun()
		}
		return nil
	}
	return err
}

func (c *Channel) deliver(rec []byte) {
	c.stats.Records++
	if c.Handler != nil {
		c.Handler.HandleRecord(rec)
	}
}
