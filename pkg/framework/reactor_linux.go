package framework

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// Readiness bits.
const (
	EventReadable Events = unix.EPOLLIN
	EventWritable Events = unix.EPOLLOUT
	EventError    Events = unix.EPOLLERR
	EventHangup   Events = unix.EPOLLHUP
)

// ErrReactorClosed is returned when using a closed Reactor.
var ErrReactorClosed = errors.New("reactor closed")

// Registration binds a file descriptor to a handler.
type Registration struct {
	reactor *Reactor
	fd      int
	name    string
	events  Events
	handler EventHandler
}

// Fd returns the registered file descriptor.
func (r *Registration) Fd() int {
	return r.fd
}

// Name implements Named.
func (r *Registration) Name() string {
	return r.name
}

// Active tells whether the registration is still in the reactor.
func (r *Registration) Active() bool {
	return r.reactor != nil && r.reactor.regs[r.fd] == r
}

// Unregister removes the registration. It is safe to call from the
// registration's own handler.
func (r *Registration) Unregister() error {
	if r.reactor == nil {
		return nil
	}
	return r.reactor.Unregister(r)
}

// Reactor is a single-threaded readiness dispatcher over epoll.
// All handlers run on the goroutine calling RunUntil.
type Reactor struct {
	epfd   int
	regs   map[int]*Registration
	events [1]unix.EpollEvent
}

// NewReactor creates the epoll instance.
func NewReactor() (*Reactor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Reactor{epfd: fd, regs: make(map[int]*Registration)}, nil
}

// Register adds fd with the interest set to the reactor.
func (r *Reactor) Register(name string, fd int, events Events, h EventHandler) (*Registration, error) {
	if r.epfd < 0 {
		return nil, ErrReactorClosed
	}
	if _, exists := r.regs[fd]; exists {
		return nil, fmt.Errorf("register %s: fd %d already registered", name, fd)
	}
	ev := unix.EpollEvent{Events: uint32(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	reg := &Registration{reactor: r, fd: fd, name: name, events: events, handler: h}
	r.regs[fd] = reg
	glog.V(4).Infof("reactor: registered %s fd=%d", name, fd)
	return reg, nil
}

// Modify changes the interest set of a registration.
func (r *Reactor) Modify(reg *Registration, events Events) error {
	if !reg.Active() {
		return fmt.Errorf("modify %s: not registered", reg.name)
	}
	ev := unix.EpollEvent{Events: uint32(events), Fd: int32(reg.fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, reg.fd, &ev); err != nil {
		return fmt.Errorf("modify %s: %w", reg.name, err)
	}
	reg.events = events
	return nil
}

// Unregister removes a registration. The file descriptor is not closed.
func (r *Reactor) Unregister(reg *Registration) error {
	if r.regs[reg.fd] != reg {
		return nil
	}
	delete(r.regs, reg.fd)
	reg.reactor = nil
	glog.V(4).Infof("reactor: unregistered %s fd=%d", reg.name, reg.fd)
	if r.epfd < 0 {
		return nil
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, reg.fd, nil); err != nil && err != unix.EBADF && err != unix.ENOENT {
		return fmt.Errorf("unregister %s: %w", reg.name, err)
	}
	return nil
}

// Len returns the number of registrations.
func (r *Reactor) Len() int {
	return len(r.regs)
}

// RunUntil waits for readiness and dispatches exactly one ready
// source per wake until stop is requested. stop is sampled before
// every dispatch.
func (r *Reactor) RunUntil(stop StopFlag) error {
	for !stop.Requested() {
		reg, ev, err := r.wait(-1)
		if err != nil {
			return err
		}
		if reg == nil || stop.Requested() {
			continue
		}
		r.dispatch(reg, ev)
	}
	return nil
}

// RunOnce waits up to timeout (negative waits forever) and dispatches
// at most one ready source. It reports whether a handler ran.
func (r *Reactor) RunOnce(timeout time.Duration) (bool, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}
	reg, ev, err := r.wait(msec)
	if err != nil || reg == nil {
		return false, err
	}
	r.dispatch(reg, ev)
	return true, nil
}

func (r *Reactor) wait(msec int) (*Registration, Events, error) {
	if r.epfd < 0 {
		return nil, 0, ErrReactorClosed
	}
	n, err := unix.EpollWait(r.epfd, r.events[:], msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("epoll_wait: %w", err)
	}
	if n == 0 {
		return nil, 0, nil
	}
	reg := r.regs[int(r.events[0].Fd)]
	return reg, Events(r.events[0].Events), nil
}

func (r *Reactor) dispatch(reg *Registration, ev Events) {
	glog.V(4).Infof("reactor: dispatch %s events=%#x", reg.name, uint32(ev))
	if reg.handler != nil {
		reg.handler.HandleEvent(reg, ev)
	}
}

// Close unregisters everything and closes the epoll instance.
func (r *Reactor) Close() error {
	if r.epfd < 0 {
		return nil
	}
	for _, reg := range r.regs {
		reg.reactor = nil
	}
	r.regs = make(map[int]*Registration)
	err := unix.Close(r.epfd)
	r.epfd = -1
	return err
}
