package framework

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type testPipe struct {
	r, w int
}

func newTestPipe(t *testing.T) *testPipe {
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	p := &testPipe{r: fds[0], w: fds[1]}
	t.Cleanup(func() {
		unix.Close(p.r)
		unix.Close(p.w)
	})
	return p
}

func (p *testPipe) write(t *testing.T, s string) {
	_, err := unix.Write(p.w, []byte(s))
	require.NoError(t, err)
}

func (p *testPipe) drain() string {
	buf := make([]byte, 64)
	n, _ := unix.Read(p.r, buf)
	if n < 0 {
		n = 0
	}
	return string(buf[:n])
}

func newTestReactor(t *testing.T) *Reactor {
	r, err := NewReactor()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestReactorDispatchesOneSourcePerWake(t *testing.T) {
	r := newTestReactor(t)
	p1, p2 := newTestPipe(t), newTestPipe(t)
	var calls []string
	_, err := r.Register("p1", p1.r, EventReadable, HandleEventFunc(func(*Registration, Events) {
		calls = append(calls, "p1:"+p1.drain())
	}))
	require.NoError(t, err)
	_, err = r.Register("p2", p2.r, EventReadable, HandleEventFunc(func(*Registration, Events) {
		calls = append(calls, "p2:"+p2.drain())
	}))
	require.NoError(t, err)

	p1.write(t, "a")
	p2.write(t, "b")

	ran, err := r.RunOnce(time.Second)
	require.NoError(t, err)
	require.True(t, ran)
	require.Len(t, calls, 1)

	ran, err = r.RunOnce(time.Second)
	require.NoError(t, err)
	require.True(t, ran)
	require.ElementsMatch(t, []string{"p1:a", "p2:b"}, calls)

	ran, err = r.RunOnce(10 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ran)
}

func TestReactorWritableAndModify(t *testing.T) {
	r := newTestReactor(t)
	p := newTestPipe(t)
	var got []Events
	reg, err := r.Register("out", p.w, EventWritable, HandleEventFunc(func(_ *Registration, ev Events) {
		got = append(got, ev)
	}))
	require.NoError(t, err)

	ran, err := r.RunOnce(time.Second)
	require.NoError(t, err)
	require.True(t, ran)
	require.Len(t, got, 1)
	require.NotZero(t, got[0]&EventWritable)

	require.NoError(t, r.Modify(reg, EventReadable))
	ran, err = r.RunOnce(10 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ran)

	require.NoError(t, r.Unregister(reg))
	require.Error(t, r.Modify(reg, EventWritable))
}

func TestReactorHandlerMayUnregisterItself(t *testing.T) {
	r := newTestReactor(t)
	p := newTestPipe(t)
	var calls int
	reg, err := r.Register("self", p.r, EventReadable, HandleEventFunc(func(reg *Registration, _ Events) {
		calls++
		require.NoError(t, reg.Unregister())
	}))
	require.NoError(t, err)
	require.True(t, reg.Active())

	p.write(t, "x")
	ran, err := r.RunOnce(time.Second)
	require.NoError(t, err)
	require.True(t, ran)
	require.False(t, reg.Active())
	require.Zero(t, r.Len())

	// still readable, but no longer dispatched
	ran, err = r.RunOnce(10 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ran)
	require.Equal(t, 1, calls)
}

func TestReactorRejectsDuplicateFd(t *testing.T) {
	r := newTestReactor(t)
	p := newTestPipe(t)
	_, err := r.Register("a", p.r, EventReadable, nil)
	require.NoError(t, err)
	_, err = r.Register("b", p.r, EventReadable, nil)
	require.Error(t, err)
}

func TestTimerOneShotAndConsume(t *testing.T) {
	r := newTestReactor(t)
	var fired uint64
	timer, err := r.NewTimer("oneshot", HandleTimerFunc(func(tm *Timer) {
		n, err := tm.Consume()
		require.NoError(t, err)
		fired += n
	}))
	require.NoError(t, err)
	defer timer.Close()

	require.NoError(t, timer.SetOneShot(5*time.Millisecond))
	ran, err := r.RunOnce(time.Second)
	require.NoError(t, err)
	require.True(t, ran)
	require.EqualValues(t, 1, fired)

	ran, err = r.RunOnce(20 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ran)

	n, err := timer.Consume()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestTimerPeriodicAndDisarm(t *testing.T) {
	r := newTestReactor(t)
	var fired int
	timer, err := r.NewTimer("periodic", HandleTimerFunc(func(tm *Timer) {
		_, err := tm.Consume()
		require.NoError(t, err)
		fired++
	}))
	require.NoError(t, err)
	defer timer.Close()

	require.NoError(t, timer.SetPeriod(2*time.Millisecond))
	for i := 0; i < 3; i++ {
		ran, err := r.RunOnce(time.Second)
		require.NoError(t, err)
		require.True(t, ran)
	}
	require.Equal(t, 3, fired)

	require.NoError(t, timer.Disarm())
	timer.Consume()
	ran, err := r.RunOnce(20 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ran)
}

func TestMailboxDeliversInOrderAndStopsReactor(t *testing.T) {
	r := newTestReactor(t)
	var term Termination
	var got []Message
	mbox, err := r.NewMailbox("inbox", HandleMessageFunc(func(msg Message) {
		got = append(got, msg)
		if msg == "stop" {
			term.Request(0)
		}
	}))
	require.NoError(t, err)
	defer mbox.Close()

	done := make(chan struct{})
	go func() {
		mbox.Post(1)
		mbox.Post(2)
		mbox.Post("stop")
		close(done)
	}()
	<-done
	require.Equal(t, 3, mbox.Pending())

	errCh := make(chan error, 1)
	go func() { errCh <- r.RunUntil(&term) }()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reactor did not stop")
	}
	require.Equal(t, []Message{1, 2, "stop"}, got)
	require.Zero(t, mbox.Pending())
}

func TestRunUntilSamplesFlagBeforeDispatch(t *testing.T) {
	r := newTestReactor(t)
	p := newTestPipe(t)
	var term Termination
	var calls int
	_, err := r.Register("p", p.r, EventReadable, HandleEventFunc(func(*Registration, Events) {
		calls++
		p.drain()
	}))
	require.NoError(t, err)
	p.write(t, "x")
	term.Request(3)
	require.NoError(t, r.RunUntil(&term))
	require.Zero(t, calls)
	require.Equal(t, 3, term.Code())
}
