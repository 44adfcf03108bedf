package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/beacongw/pkg/cloud"
)

// Frame channels.
const (
	ChannelInbound   = "c2d"
	ChannelTwin      = "twin"
	ChannelTelemetry = "d2c"
	ChannelReported  = "reported"
)

// Defaults.
const (
	DefaultRetryInterval = 5 * time.Second
	DefaultOutboundDepth = 8
)

var (
	// ErrInvalidBody is returned when a frame body is not JSON.
	ErrInvalidBody = errors.New("frame body is not JSON")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("transport closed")
)

// Frame is the unit exchanged with the bridge.
type Frame struct {
	Channel string          `json:"ch"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// Transport implements cloud.Transport over a websocket bridge.
type Transport struct {
	URL           string
	Origin        string
	RetryInterval time.Duration

	sink    cloud.EventSink
	out     chan Frame
	conn    atomic.Pointer[ReadWriter]
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	doneCh  chan struct{}
}

// NewTransport creates a Transport dialing url.
func NewTransport(url string, sink cloud.EventSink) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		URL:           url,
		Origin:        "http://localhost/",
		RetryInterval: DefaultRetryInterval,
		sink:          sink,
		out:           make(chan Frame, DefaultOutboundDepth),
		ctx:           ctx,
		cancel:        cancel,
		doneCh:        make(chan struct{}),
	}
}

// Start implements cloud.Transport.
func (t *Transport) Start() error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrClosed
	}
	go t.run()
	return nil
}

// SendTelemetry implements cloud.Sender.
func (t *Transport) SendTelemetry(payload []byte) error {
	return t.enqueue(ChannelTelemetry, payload)
}

// ReportTwin implements cloud.Transport.
func (t *Transport) ReportTwin(props []byte) error {
	return t.enqueue(ChannelReported, props)
}

// Close implements cloud.Transport. It may be called without Start.
func (t *Transport) Close() error {
	t.cancel()
	if t.started.CompareAndSwap(false, true) {
		close(t.doneCh)
		return nil
	}
	if conn := t.conn.Load(); conn != nil {
		conn.Close()
	}
	<-t.doneCh
	return nil
}

func (t *Transport) enqueue(channel string, body []byte) error {
	if t.conn.Load() == nil {
		return cloud.ErrWouldBlock
	}
	if !json.Valid(body) {
		return ErrInvalidBody
	}
	select {
	case t.out <- Frame{Channel: channel, Body: body}:
		return nil
	default:
		return cloud.ErrWouldBlock
	}
}

func (t *Transport) run() {
	defer close(t.doneCh)
	for {
		if err := t.session(); err != nil {
			glog.Warningf("websocket %s: %v", t.URL, err)
		}
		select {
		case <-t.ctx.Done():
			return
		case <-time.After(t.RetryInterval):
		}
	}
}

func (t *Transport) session() error {
	ws, err := websocket.Dial(t.URL, "", t.Origin)
	if err != nil {
		return err
	}
	conn := New(ws)
	defer conn.Close()
	if t.ctx.Err() != nil {
		return nil
	}

	connCtx, stop := context.WithCancel(t.ctx)
	defer stop()
	t.conn.Store(conn)
	t.sink.Post(cloud.Event{Kind: cloud.EventConnected})
	defer t.sink.Post(cloud.Event{Kind: cloud.EventDisconnected})
	defer t.conn.Store(nil)

	go t.writeLoop(connCtx, conn)
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if t.ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch f.Channel {
		case ChannelInbound:
			t.sink.Post(cloud.Event{Kind: cloud.EventMessage, Payload: []byte(f.Body)})
		case ChannelTwin:
			t.sink.Post(cloud.Event{Kind: cloud.EventTwin, Payload: []byte(f.Body)})
		default:
			glog.V(3).Infof("websocket: ignore channel %q", f.Channel)
		}
	}
}

func (t *Transport) writeLoop(ctx context.Context, conn *ReadWriter) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-t.out:
			if err := conn.WriteFrame(f); err != nil {
				glog.Warningf("websocket write %s: %v", f.Channel, err)
				conn.Close()
				return
			}
		}
	}
}
