package framework

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Timer is a monotonic timerfd registered in a Reactor. Expirations
// keep the timer readable until Consume is called.
type Timer struct {
	fd      int
	name    string
	reg     *Registration
	handler TimerHandler
	buf     [8]byte
}

// NewTimer creates a disarmed timer and registers it.
func (r *Reactor) NewTimer(name string, h TimerHandler) (*Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("timerfd_create %s: %w", name, err)
	}
	t := &Timer{fd: fd, name: name, handler: h}
	reg, err := r.Register(name, fd, EventReadable, HandleEventFunc(t.handleEvent))
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	t.reg = reg
	return t, nil
}

// Name implements Named.
func (t *Timer) Name() string {
	return t.name
}

// Fd returns the timerfd.
func (t *Timer) Fd() int {
	return t.fd
}

// SetPeriod arms the timer to expire every d, first after d.
func (t *Timer) SetPeriod(d time.Duration) error {
	return t.settime(d, d)
}

// SetOneShot arms the timer to expire once after d.
func (t *Timer) SetOneShot(d time.Duration) error {
	return t.settime(d, 0)
}

// Disarm stops the timer. Pending expirations still need Consume.
func (t *Timer) Disarm() error {
	return t.settime(0, 0)
}

func (t *Timer) settime(initial, interval time.Duration) error {
	if initial < 0 || interval < 0 {
		return fmt.Errorf("timer %s: negative duration", t.name)
	}
	if interval > 0 && initial == 0 {
		initial = interval
	}
	spec := unix.ItimerSpec{
		Value:    unix.NsecToTimespec(int64(initial)),
		Interval: unix.NsecToTimespec(int64(interval)),
	}
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		return fmt.Errorf("timerfd_settime %s: %w", t.name, err)
	}
	return nil
}

// Consume reads the expiration count, clearing readiness. It returns
// 0 without error when nothing expired.
func (t *Timer) Consume() (uint64, error) {
	n, err := unix.Read(t.fd, t.buf[:])
	if err == unix.EAGAIN {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("consume timer %s: %w", t.name, err)
	}
	if n != len(t.buf) {
		return 0, fmt.Errorf("consume timer %s: short read %d", t.name, n)
	}
	return binary.NativeEndian.Uint64(t.buf[:]), nil
}

// Close unregisters and closes the timer.
func (t *Timer) Close() error {
	if t.fd < 0 {
		return nil
	}
	var errs AggregatedError
	errs.Add(t.reg.Unregister(), unix.Close(t.fd))
	t.fd = -1
	return errs.Aggregate()
}

func (t *Timer) handleEvent(*Registration, Events) {
	if t.handler != nil {
		t.handler.HandleTimer(t)
		return
	}
	t.Consume()
}
