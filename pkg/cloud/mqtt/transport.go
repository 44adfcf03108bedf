package mqtt

import (
	"strconv"
	"strings"
	"sync/atomic"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/beacongw/pkg/cloud"
)

// DefaultMaxInflight limits unacknowledged telemetry publishes.
const DefaultMaxInflight = 8

const twinStatusOK = 200

// Topics is the IoT hub style topic layout for one device.
type Topics struct {
	Telemetry   string
	Inbound     string
	TwinDesired string
	TwinResult  string
	TwinGet     string
	TwinReport  string
}

// DeviceTopics returns the topic layout for deviceID.
func DeviceTopics(deviceID string) Topics {
	return Topics{
		Telemetry:   "devices/" + deviceID + "/messages/events/",
		Inbound:     "devices/" + deviceID + "/messages/devicebound/#",
		TwinDesired: "$iothub/twin/PATCH/properties/desired/#",
		TwinResult:  "$iothub/twin/res/#",
		TwinGet:     "$iothub/twin/GET/?$rid=",
		TwinReport:  "$iothub/twin/PATCH/properties/reported/?$rid=",
	}
}

// TwinStatus extracts the status code from a twin result topic like
// $iothub/twin/res/200/?$rid=1.
func TwinStatus(topic string) (int, bool) {
	const prefix = "$iothub/twin/res/"
	if !strings.HasPrefix(topic, prefix) {
		return 0, false
	}
	status := topic[len(prefix):]
	if pos := strings.IndexByte(status, '/'); pos >= 0 {
		status = status[:pos]
	}
	code, err := strconv.Atoi(status)
	return code, err == nil
}

// Transport implements cloud.Transport over MQTT.
type Transport struct {
	Queue       *Queue
	Topics      Topics
	MaxInflight int32

	sink     cloud.EventSink
	subs     []*Subscription
	inflight atomic.Int32
	rid      atomic.Uint64
}

// NewTransport creates a Transport from a broker URL. Events are
// posted to sink from paho goroutines.
func NewTransport(brokerURL, deviceID string, sink cloud.EventSink) (*Transport, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID(deviceID)
	}
	return &Transport{
		Queue:       NewQueue(opts, prefix),
		Topics:      DeviceTopics(deviceID),
		MaxInflight: DefaultMaxInflight,
		sink:        sink,
	}, nil
}

// Start implements cloud.Transport.
func (t *Transport) Start() error {
	t.Queue.OnConnect = t.connected
	t.Queue.OnDisconnect = t.disconnected
	t.subs = append(t.subs,
		t.Queue.Sub(t.Topics.Inbound, t.post(cloud.EventMessage)),
		t.Queue.Sub(t.Topics.TwinDesired, t.post(cloud.EventTwin)),
		t.Queue.Sub(t.Topics.TwinResult, t.twinResult),
	)
	token := t.Queue.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			glog.Errorf("mqtt connect: %v", token.Error())
		}
	}()
	return nil
}

// SendTelemetry implements cloud.Sender.
func (t *Transport) SendTelemetry(payload []byte) error {
	if !t.Queue.Client.IsConnectionOpen() {
		return cloud.ErrWouldBlock
	}
	if t.inflight.Add(1) > t.MaxInflight {
		t.inflight.Add(-1)
		return cloud.ErrWouldBlock
	}
	token := t.Queue.Pub(t.Topics.Telemetry, payload)
	go t.await("telemetry", token)
	return nil
}

// ReportTwin implements cloud.Transport.
func (t *Transport) ReportTwin(props []byte) error {
	if !t.Queue.Client.IsConnectionOpen() {
		return cloud.ErrWouldBlock
	}
	topic := t.Topics.TwinReport + strconv.FormatUint(t.rid.Add(1), 10)
	go t.await("twin report", t.Queue.Pub(topic, props))
	return nil
}

// Close implements cloud.Transport.
func (t *Transport) Close() error {
	for _, sub := range t.subs {
		sub.Close()
	}
	t.subs = nil
	return t.Queue.Close()
}

func (t *Transport) await(what string, token paho.Token) {
	token.Wait()
	if what == "telemetry" {
		t.inflight.Add(-1)
	}
	if err := token.Error(); err != nil {
		glog.Warningf("mqtt %s: %v", what, err)
	}
}

func (t *Transport) connected(q *Queue) {
	t.sink.Post(cloud.Event{Kind: cloud.EventConnected})
	topic := t.Topics.TwinGet + strconv.FormatUint(t.rid.Add(1), 10)
	go t.await("twin get", q.Pub(topic, nil))
}

func (t *Transport) disconnected(*Queue) {
	t.sink.Post(cloud.Event{Kind: cloud.EventDisconnected})
}

func (t *Transport) post(kind cloud.EventKind) Handler {
	return func(topic string, payload []byte) {
		t.sink.Post(cloud.Event{Kind: kind, Payload: payload})
	}
}

func (t *Transport) twinResult(topic string, payload []byte) {
	code, ok := TwinStatus(topic)
	if !ok || code != twinStatusOK || len(payload) == 0 {
		// 204 acknowledges a reported patch
		glog.V(3).Infof("twin result %q", topic)
		return
	}
	t.sink.Post(cloud.Event{Kind: cloud.EventTwin, Payload: payload})
}
