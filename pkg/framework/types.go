package framework

import (
	"context"
	"time"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Message is an item posted to a Mailbox from a foreign goroutine
// and delivered on the reactor thread.
type Message interface{}

// MessageHandler processes a message.
type MessageHandler interface {
	HandleMessage(Message)
}

// HandleMessageFunc is the func form of MessageHandler.
type HandleMessageFunc func(Message)

// HandleMessage implements MessageHandler.
func (f HandleMessageFunc) HandleMessage(msg Message) {
	f(msg)
}

// Events is a readiness mask reported by the reactor.
type Events uint32

// EventHandler is invoked on the reactor thread when a registered
// source becomes ready.
type EventHandler interface {
	HandleEvent(*Registration, Events)
}

// HandleEventFunc is the func form of EventHandler.
type HandleEventFunc func(*Registration, Events)

// HandleEvent implements EventHandler.
func (f HandleEventFunc) HandleEvent(reg *Registration, ev Events) {
	f(reg, ev)
}

// TimerHandler is invoked when a Timer expires. The handler must
// call Timer.Consume, otherwise the timer stays readable.
type TimerHandler interface {
	HandleTimer(*Timer)
}

// HandleTimerFunc is the func form of TimerHandler.
type HandleTimerFunc func(*Timer)

// HandleTimer implements TimerHandler.
func (f HandleTimerFunc) HandleTimer(t *Timer) {
	f(t)
}

// Ticker is the part of a Timer other components program.
type Ticker interface {
	SetPeriod(time.Duration) error
	SetOneShot(time.Duration) error
	Disarm() error
}

// StopFlag reports whether the reactor should stop.
type StopFlag interface {
	Requested() bool
}
