package cloud

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const helloString = `{"t":"` + testTimeString + `","mt":200,"sid":""}`

func TestSessionHandshake(t *testing.T) {
	c := newSessionTest()
	s := c.session
	require.Equal(t, StateUnprovisioned, s.State())

	// not connected yet, messages are ignored
	require.NoError(t, s.HandleMessage([]byte(`{"d":{"dtg":"G"}}`)))
	require.Equal(t, StateUnprovisioned, s.State())

	s.NetworkReady()
	require.Equal(t, StateHandshaking, s.State())
	require.Equal(t, []string{helloString}, c.sender.strings())
	require.True(t, c.ticker.armed)
	require.Equal(t, DefaultHelloPeriod, c.ticker.period)

	s.HelloTick()
	require.Len(t, c.sender.sent, 2)
	require.Equal(t, 2, c.observer.hellos)

	// a response without dtg does not complete the handshake
	require.NoError(t, s.HandleMessage([]byte(`{"d":{"ec":0,"ct":200,"sid":"S"}}`)))
	require.Equal(t, StateHandshaking, s.State())
	require.Equal(t, "S", s.SessionID())

	require.NoError(t, s.HandleMessage([]byte(`{"d":{"ec":0,"ct":200,"sid":"S","meta":{"dtg":"G","g":"opt"}}}`)))
	require.Equal(t, StateReady, s.State())
	require.Equal(t, "G", s.TemplateGUID())
	require.Equal(t, "opt", s.OptionalGUID())
	require.False(t, c.ticker.armed)
	require.Equal(t, 1, c.readies)
	require.Equal(t, []State{StateHandshaking, StateReady}, c.observer.states)

	// sid persisted once, only on change
	require.Equal(t, [][2]string{{"S", ""}}, c.store.saved)

	s.HelloTick()
	require.Len(t, c.sender.sent, 2)
}

func TestSessionDtgAtTopLevel(t *testing.T) {
	c := newSessionTest()
	c.session.NetworkReady()
	require.NoError(t, c.session.HandleMessage([]byte(`{"d":{"sid":"A","dtg":"T","g":"x","has":{"d":0,"attr":1}}}`)))
	require.Equal(t, StateReady, c.session.State())
	require.Equal(t, "T", c.session.TemplateGUID())
	require.Equal(t, [][2]string{{"A", "T"}}, c.store.saved)
}

func TestSessionMalformedMessage(t *testing.T) {
	c := newSessionTest()
	c.session.NetworkReady()
	for _, msg := range []string{`not json`, `{}`, `{"d":1}`, `[1,2]`} {
		err := c.session.HandleMessage([]byte(msg))
		require.ErrorIs(t, err, ErrMalformedResponse, msg)
		require.Equal(t, StateHandshaking, c.session.State())
	}
}

func TestSessionReconnect(t *testing.T) {
	c := newSessionTest()
	s := c.session
	s.NetworkReady()
	require.NoError(t, s.HandleMessage([]byte(`{"d":{"sid":"S","dtg":"G"}}`)))
	require.Equal(t, StateReady, s.State())

	s.NetworkLost()
	require.Equal(t, StateHandshaking, s.State())
	require.False(t, s.Connected())
	require.False(t, c.ticker.armed)
	s.HelloTick()
	require.Len(t, c.sender.sent, 1)

	s.NetworkReady()
	require.Equal(t, StateHandshaking, s.State())
	require.Len(t, c.sender.sent, 2)
	require.True(t, c.ticker.armed)

	// same sid is not persisted again
	require.NoError(t, s.HandleMessage([]byte(`{"d":{"sid":"S","dtg":"G"}}`)))
	require.Equal(t, StateReady, s.State())
	require.Len(t, c.store.saved, 1)
	require.Equal(t, 2, c.readies)
}

func TestSessionSuspendResume(t *testing.T) {
	c := newSessionTest()
	s := c.session
	s.NetworkReady()
	s.Suspend()
	require.Equal(t, StateSuspended, s.State())
	require.False(t, c.ticker.armed)

	require.NoError(t, s.HandleMessage([]byte(`{"d":{"dtg":"G"}}`)))
	require.Equal(t, StateSuspended, s.State())

	// connection changes while suspended keep the state
	s.NetworkLost()
	s.NetworkReady()
	require.Equal(t, StateSuspended, s.State())
	require.Len(t, c.sender.sent, 1)

	s.Resume()
	require.Equal(t, StateHandshaking, s.State())
	require.Len(t, c.sender.sent, 2)
	require.True(t, c.ticker.armed)
}

func TestSessionHelloFailureIsNotFatal(t *testing.T) {
	c := newSessionTest()
	c.sender.block = true
	c.session.NetworkReady()
	require.Equal(t, StateHandshaking, c.session.State())
	require.Zero(t, c.observer.hellos)
	require.True(t, c.ticker.armed)
}
