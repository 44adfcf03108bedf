package framework

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/golang/glog"
)

// Termination is the stop request shared by signal delivery, fatal
// handlers and the reactor. The first request wins and records the
// exit code.
type Termination struct {
	// OnRequest runs after the first successful Request, on the
	// requesting goroutine. It is used to wake the reactor.
	OnRequest func()

	// code+1 once requested, 0 before.
	state atomic.Int64
}

// Request records a stop with exit code. It returns false when a stop
// was already requested.
func (t *Termination) Request(code int) bool {
	if !t.state.CompareAndSwap(0, int64(code)+1) {
		return false
	}
	if fn := t.OnRequest; fn != nil {
		fn()
	}
	return true
}

// Requested implements StopFlag.
func (t *Termination) Requested() bool {
	return t.state.Load() != 0
}

// Code returns the recorded exit code, 0 when not requested.
func (t *Termination) Code() int {
	if v := t.state.Load(); v != 0 {
		return int(v - 1)
	}
	return 0
}

// HandleSignals requests a clean stop with code 0 on CtrlC or SIGTERM.
// A second signal exits the process immediately. The returned func
// stops signal delivery.
func (t *Termination) HandleSignals() func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	doneCh := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
		case <-doneCh:
			return
		}
		glog.Info("stop requested")
		t.Request(0)
		select {
		case <-sigCh:
		case <-doneCh:
			return
		}
		glog.Error("stop requested again, force exit")
		glog.Flush()
		os.Exit(t.Code())
	}()
	return func() {
		signal.Stop(sigCh)
		close(doneCh)
	}
}
