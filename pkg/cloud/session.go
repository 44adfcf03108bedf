package cloud

import (
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/beacongw/pkg/framework"
)

// DefaultHelloPeriod is how often the hello is repeated while waiting
// for the handshake response.
const DefaultHelloPeriod = 15 * time.Second

// State is the session state.
type State int

// Session states.
const (
	StateUnprovisioned State = iota
	StateHandshaking
	StateReady
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateUnprovisioned:
		return "unprovisioned"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateSuspended:
		return "suspended"
	}
	return "invalid"
}

// SessionStore persists the session id across restarts.
type SessionStore interface {
	SaveSession(sid, dtg string) error
}

// Session tracks the IoTConnect handshake.
type Session struct {
	HelloPeriod time.Duration
	Clock       fx.Clock
	Store       SessionStore
	Observer    Observer
	// OnReady runs on every transition into StateReady.
	OnReady func()

	sender    Sender
	hello     fx.Ticker
	state     State
	connected bool

	sid  string
	dtg  string
	guid string
}

// NewSession creates a session sending hellos through sender, paced
// by the hello ticker.
func NewSession(sender Sender, hello fx.Ticker) *Session {
	return &Session{
		HelloPeriod: DefaultHelloPeriod,
		Clock:       fx.SystemClock,
		Observer:    NopObserver{},
		sender:      sender,
		hello:       hello,
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Connected tells whether the transport is up.
func (s *Session) Connected() bool {
	return s.connected
}

// SessionID returns the sid assigned by the platform.
func (s *Session) SessionID() string {
	return s.sid
}

// TemplateGUID returns the dtg assigned by the platform.
func (s *Session) TemplateGUID() string {
	return s.dtg
}

// OptionalGUID returns the g assigned by the platform.
func (s *Session) OptionalGUID() string {
	return s.guid
}

// Restore seeds the sid loaded from persistent storage.
func (s *Session) Restore(sid, dtg string) {
	s.sid, s.dtg = sid, dtg
}

// NetworkReady handles a (re)connection: the handshake restarts.
func (s *Session) NetworkReady() {
	s.connected = true
	if s.state == StateSuspended {
		return
	}
	s.startHandshake()
}

// NetworkLost handles a dropped connection.
func (s *Session) NetworkLost() {
	s.connected = false
	if s.state == StateSuspended {
		return
	}
	s.disarmHello()
	if s.state == StateReady {
		s.setState(StateHandshaking)
	}
}

// HelloTick is the hello timer handler body.
func (s *Session) HelloTick() {
	if s.state == StateHandshaking && s.connected {
		s.sendHello()
	}
}

// HandleMessage processes a cloud-to-device message. Messages carrying
// a dtg complete the handshake.
func (s *Session) HandleMessage(payload []byte) error {
	if s.state == StateSuspended || s.state == StateUnprovisioned {
		glog.V(2).Infof("session: ignore message in state %s", s.state)
		return nil
	}
	resp, err := ParseResponse(payload)
	if err != nil {
		return err
	}
	if resp.EC != nil && *resp.EC != 0 {
		glog.Warningf("session: platform reported ec=%d", *resp.EC)
	}
	sidChanged := resp.SessionID != nil && *resp.SessionID != s.sid
	if sidChanged {
		s.sid = *resp.SessionID
		glog.Infof("session: new sid %q", s.sid)
	}
	if resp.OptionalGUID != nil {
		s.guid = *resp.OptionalGUID
	}
	if resp.TemplateGUID != nil {
		s.dtg = *resp.TemplateGUID
	}
	if sidChanged {
		s.persist()
	}
	if resp.TemplateGUID == nil {
		return nil
	}
	if s.state == StateHandshaking {
		s.disarmHello()
		s.setState(StateReady)
		glog.Infof("session: ready dtg=%q", s.dtg)
		if s.OnReady != nil {
			s.OnReady()
		}
	}
	return nil
}

// Suspend stops the session until Resume.
func (s *Session) Suspend() {
	if s.state == StateSuspended {
		return
	}
	s.disarmHello()
	s.setState(StateSuspended)
}

// Resume restarts the handshake after Suspend.
func (s *Session) Resume() {
	if s.state != StateSuspended {
		return
	}
	if !s.connected {
		s.setState(StateHandshaking)
		return
	}
	s.startHandshake()
}

func (s *Session) startHandshake() {
	s.setState(StateHandshaking)
	s.sendHello()
	if s.hello != nil {
		if err := s.hello.SetPeriod(s.HelloPeriod); err != nil {
			glog.Errorf("session: arm hello timer: %v", err)
		}
	}
}

func (s *Session) sendHello() {
	if err := s.sender.SendTelemetry(HelloMessage(s.Clock.Now())); err != nil {
		glog.Warningf("session: send hello: %v", err)
		return
	}
	s.Observer.HelloSent()
	glog.V(2).Info("session: hello sent")
}

func (s *Session) disarmHello() {
	if s.hello == nil {
		return
	}
	if err := s.hello.Disarm(); err != nil {
		glog.Errorf("session: disarm hello timer: %v", err)
	}
}

func (s *Session) persist() {
	if s.Store == nil {
		return
	}
	if err := s.Store.SaveSession(s.sid, s.dtg); err != nil {
		glog.Errorf("session: persist sid: %v", err)
	}
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	glog.V(2).Infof("session: %s -> %s", s.state, state)
	s.state = state
	s.Observer.SessionStateChanged(state)
}
