package cloud

import (
	"fmt"

	"github.com/golang/glog"

	fx "github.com/robotalks/beacongw/pkg/framework"
)

// Mode selects what happens to telemetry before the handshake completes.
type Mode int

// Publisher modes.
const (
	// ModeDrop discards telemetry while the session is not ready.
	ModeDrop Mode = iota
	// ModeBuffer keeps telemetry in a bounded FIFO until ready.
	ModeBuffer
)

func (m Mode) String() string {
	if m == ModeBuffer {
		return "buffer"
	}
	return "drop"
}

// ParseMode parses "drop" or "buffer".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "drop":
		return ModeDrop, nil
	case "buffer":
		return ModeBuffer, nil
	}
	return ModeDrop, fmt.Errorf("invalid publisher mode %q", s)
}

// DefaultQueueDepth bounds the publisher FIFO.
const DefaultQueueDepth = 16

// Drop causes reported to the Observer.
const (
	DropNotReady  = "not_ready"
	DropOverflow  = "overflow"
	DropSendError = "send_error"
)

// SessionInfo is the part of a Session the publisher needs.
type SessionInfo interface {
	State() State
	SessionID() string
	TemplateGUID() string
}

type pendingPayload struct {
	inner   []byte
	wrapped []byte
}

// Publisher wraps inner payloads in the session envelope and sends
// them. While the transport pushes back, wrapped payloads wait at the
// head of the FIFO.
type Publisher struct {
	Mode     Mode
	Depth    int
	Clock    fx.Clock
	Observer Observer

	session SessionInfo
	sender  Sender
	queue   []pendingPayload
}

// NewPublisher creates a publisher in ModeDrop.
func NewPublisher(session SessionInfo, sender Sender) *Publisher {
	return &Publisher{
		Depth:    DefaultQueueDepth,
		Clock:    fx.SystemClock,
		Observer: NopObserver{},
		session:  session,
		sender:   sender,
	}
}

// Pending returns the number of queued payloads.
func (p *Publisher) Pending() int {
	return len(p.queue)
}

// Publish sends inner or queues it. It returns ErrNotReady or
// ErrQueueFull when the payload was dropped, and ErrWouldBlock when it
// is queued behind transport back-pressure and Flush must be retried.
func (p *Publisher) Publish(inner []byte) error {
	ready := p.session.State() == StateReady
	if !ready && p.Mode == ModeDrop {
		p.Observer.TelemetryDropped(DropNotReady)
		glog.V(2).Infof("publisher: drop, session %s", p.session.State())
		return ErrNotReady
	}
	if len(p.queue) >= p.depth() {
		p.Observer.TelemetryDropped(DropOverflow)
		glog.Warningf("publisher: queue full (%d), drop payload", len(p.queue))
		return ErrQueueFull
	}
	p.queue = append(p.queue, pendingPayload{inner: inner})
	p.Observer.TelemetryQueued(len(p.queue))
	if !ready {
		return nil
	}
	return p.Flush()
}

// Flush sends queued payloads in order while the session is ready. It
// stops at the first ErrWouldBlock and returns it.
func (p *Publisher) Flush() error {
	defer func() { p.Observer.TelemetryQueued(len(p.queue)) }()
	for len(p.queue) > 0 && p.session.State() == StateReady {
		head := &p.queue[0]
		if head.wrapped == nil {
			head.wrapped = Wrap(p.session.SessionID(), p.session.TemplateGUID(), p.Clock.Now(), head.inner)
		}
		err := p.sender.SendTelemetry(head.wrapped)
		if err == ErrWouldBlock {
			return err
		}
		p.queue[0] = pendingPayload{}
		p.queue = p.queue[1:]
		if err != nil {
			p.Observer.TelemetryDropped(DropSendError)
			glog.Errorf("publisher: send: %v", err)
			continue
		}
		p.Observer.TelemetryPublished()
	}
	return nil
}

func (p *Publisher) depth() int {
	if p.Depth <= 0 {
		return 1
	}
	return p.Depth
}
