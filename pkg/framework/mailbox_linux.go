package framework

import (
	"sync"

	"github.com/golang/glog"
)

// Mailbox carries messages from foreign goroutines into the reactor.
// Post may be called from any goroutine. Messages are handled on the
// reactor thread in post order.
type Mailbox struct {
	Handler MessageHandler
	// OnError is called when the underlying eventfd fails.
	OnError func(error)

	waker *Waker
	reg   *Registration

	messages messageList
	lock     sync.Mutex
}

// NewMailbox creates a Mailbox and registers it in the reactor.
func (r *Reactor) NewMailbox(name string, h MessageHandler) (*Mailbox, error) {
	waker, err := NewWaker()
	if err != nil {
		return nil, err
	}
	m := &Mailbox{Handler: h, waker: waker}
	reg, err := r.Register(name, waker.Fd(), EventReadable, HandleEventFunc(m.handleEvent))
	if err != nil {
		waker.Close()
		return nil, err
	}
	m.reg = reg
	return m, nil
}

// Post enqueues a message and wakes the reactor.
func (m *Mailbox) Post(msg Message) {
	m.lock.Lock()
	m.messages.append(&messageItem{msg: msg})
	m.lock.Unlock()
	if err := m.waker.Wake(); err != nil {
		glog.Errorf("mailbox %s: wake: %v", m.reg.Name(), err)
	}
}

// Pending returns the number of queued messages.
func (m *Mailbox) Pending() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.messages.size
}

// Close unregisters the mailbox and closes its eventfd.
func (m *Mailbox) Close() error {
	var errs AggregatedError
	errs.Add(m.reg.Unregister(), m.waker.Close())
	return errs.Aggregate()
}

func (m *Mailbox) handleEvent(*Registration, Events) {
	if _, err := m.waker.Consume(); err != nil {
		if m.OnError != nil {
			m.OnError(err)
		} else {
			glog.Errorf("mailbox %s: consume: %v", m.reg.Name(), err)
		}
		return
	}
	var msgs messageList
	m.lock.Lock()
	msgs.splice(&m.messages)
	m.lock.Unlock()
	if m.Handler != nil {
		msgs.each(m.Handler.HandleMessage)
	}
}
