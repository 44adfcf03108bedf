package cloud

import (
	"time"

	fx "github.com/robotalks/beacongw/pkg/framework"
)

var testTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

const testTimeString = "2024-01-02T03:04:05.0000000Z"

type testSender struct {
	sent  [][]byte
	block bool
	err   error
}

func (s *testSender) SendTelemetry(payload []byte) error {
	if s.block {
		return ErrWouldBlock
	}
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, payload)
	return nil
}

func (s *testSender) strings() []string {
	out := make([]string, len(s.sent))
	for i, p := range s.sent {
		out[i] = string(p)
	}
	return out
}

type testTicker struct {
	period time.Duration
	armed  bool
}

func (t *testTicker) SetPeriod(d time.Duration) error {
	t.period, t.armed = d, true
	return nil
}

func (t *testTicker) SetOneShot(d time.Duration) error {
	return t.SetPeriod(d)
}

func (t *testTicker) Disarm() error {
	t.armed = false
	return nil
}

type testObserver struct {
	hellos    int
	states    []State
	published int
	dropped   map[string]int
	depth     int
}

func newTestObserver() *testObserver {
	return &testObserver{dropped: make(map[string]int)}
}

func (o *testObserver) HelloSent() {
	o.hellos++
}

func (o *testObserver) SessionStateChanged(s State) {
	o.states = append(o.states, s)
}

func (o *testObserver) TelemetryPublished() {
	o.published++
}

func (o *testObserver) TelemetryDropped(cause string) {
	o.dropped[cause]++
}

func (o *testObserver) TelemetryQueued(depth int) {
	o.depth = depth
}

type testStore struct {
	saved [][2]string
}

func (s *testStore) SaveSession(sid, dtg string) error {
	s.saved = append(s.saved, [2]string{sid, dtg})
	return nil
}

type sessionTestCtx struct {
	sender   *testSender
	ticker   *testTicker
	observer *testObserver
	store    *testStore
	session  *Session
	readies  int
}

func newSessionTest() *sessionTestCtx {
	c := &sessionTestCtx{
		sender:   &testSender{},
		ticker:   &testTicker{},
		observer: newTestObserver(),
		store:    &testStore{},
	}
	c.session = NewSession(c.sender, c.ticker)
	c.session.Clock = fx.FixedClock(testTime)
	c.session.Observer = c.observer
	c.session.Store = c.store
	c.session.OnReady = func() { c.readies++ }
	return c
}
