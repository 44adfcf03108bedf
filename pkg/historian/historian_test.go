package historian

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/beacongw/pkg/beacon"
)

type testWriter struct {
	lock   sync.Mutex
	points []*influxdb3.Point
}

func (w *testWriter) WritePoints(ctx context.Context, points []*influxdb3.Point, options ...influxdb3.WriteOption) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.points = append(w.points, points...)
	return nil
}

func (w *testWriter) count() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return len(w.points)
}

var testMAC = beacon.MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

func TestPointFromRecord(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := PointFromRecord(&beacon.Environmental{
		Header:      beacon.Header{RecordTag: beacon.TagEnvironmental, MAC: testMAC, Rssi: -60},
		Temperature: 20.5,
		Light:       12,
	}, ts)
	require.NotNil(t, p)
	assert.Equal(t, "environmental", p.Values.GetMeasurement())
	mac, ok := p.Values.GetTag("address")
	require.True(t, ok)
	assert.Equal(t, "00:11:22:33:44:55", mac)
	assert.Equal(t, 20.5, p.Values.GetField("temperature"))
	assert.Equal(t, int64(-60), p.Values.GetField("rssi"))

	assert.Nil(t, PointFromRecord(&beacon.Unknown{
		Header: beacon.Header{RecordTag: beacon.TagLegacySensor, MAC: testMAC},
	}, ts))
}

func TestHistorianBatches(t *testing.T) {
	w := &testWriter{}
	h := New(w, 2)
	h.FlushInterval = time.Hour
	rec := &beacon.Battery{Header: beacon.Header{RecordTag: beacon.TagBattery, MAC: testMAC}, Volts: 3.1}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.True(t, h.Record(rec, time.Now()))
	require.True(t, h.Record(rec, time.Now()))
	require.Eventually(t, func() bool { return w.count() == 2 }, 5*time.Second, 10*time.Millisecond)

	require.True(t, h.Record(rec, time.Now()))
	cancel()
	assert.Equal(t, context.Canceled, <-done)
	assert.Equal(t, 3, w.count())
}

func TestHistorianDropsWhenFull(t *testing.T) {
	h := New(&testWriter{}, 1)
	var drops int
	h.OnDrop = func() { drops++ }
	rec := &beacon.Battery{Header: beacon.Header{RecordTag: beacon.TagBattery, MAC: testMAC}}
	assert.True(t, h.Record(rec, time.Now()))
	assert.True(t, h.Record(rec, time.Now()))
	assert.False(t, h.Record(rec, time.Now()))
	assert.Equal(t, 1, drops)
}

type closingWriter struct {
	testWriter
	closed bool
}

func (w *closingWriter) Close() error {
	w.closed = true
	return nil
}

func TestHistorianClosesWriter(t *testing.T) {
	w := &closingWriter{}
	require.NoError(t, New(w, 1).Close())
	assert.True(t, w.closed)

	assert.NoError(t, New(&testWriter{}, 1).Close())
}
