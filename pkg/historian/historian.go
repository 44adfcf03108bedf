// Package historian mirrors decoded records into InfluxDB.
package historian

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"
	"github.com/golang/glog"

	"github.com/robotalks/beacongw/pkg/beacon"
)

// Defaults.
const (
	DefaultBatchSize     = 64
	DefaultFlushInterval = time.Second
)

// PointWriter writes a batch of points. *influxdb3.Client implements it.
type PointWriter interface {
	WritePoints(ctx context.Context, points []*influxdb3.Point, options ...influxdb3.WriteOption) error
}

// Config locates the InfluxDB database.
type Config struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	Database string `yaml:"database"`
}

// Dial creates an InfluxDB client.
func Dial(conf Config) (*influxdb3.Client, error) {
	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     conf.URL,
		Token:    conf.Token,
		Database: conf.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("influxdb client: %w", err)
	}
	return client, nil
}

// Historian batches points on its own goroutine. Record is called on
// the reactor thread and never blocks.
type Historian struct {
	Writer        PointWriter
	BatchSize     int
	FlushInterval time.Duration
	// OnDrop runs on the caller of Record when the queue is full.
	OnDrop func()

	pointCh chan *influxdb3.Point
}

// New creates a Historian.
func New(w PointWriter, batchSize int) *Historian {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Historian{
		Writer:        w,
		BatchSize:     batchSize,
		FlushInterval: DefaultFlushInterval,
		pointCh:       make(chan *influxdb3.Point, batchSize*2),
	}
}

// Name implements framework.Named.
func (h *Historian) Name() string {
	return "historian"
}

// Record queues a decoded record. It returns false if the record was
// dropped.
func (h *Historian) Record(rec beacon.Record, t time.Time) bool {
	p := PointFromRecord(rec, t)
	if p == nil {
		return true
	}
	select {
	case h.pointCh <- p:
		return true
	default:
		if h.OnDrop != nil {
			h.OnDrop()
		}
		return false
	}
}

// Run implements framework.Runnable.
func (h *Historian) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.FlushInterval)
	defer ticker.Stop()
	batch := make([]*influxdb3.Point, 0, h.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := h.Writer.WritePoints(ctx, batch); err != nil {
			glog.Warningf("historian: write %d points: %v", len(batch), err)
		} else {
			glog.V(3).Infof("historian: flushed %d points", len(batch))
		}
		batch = batch[:0]
	}
	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case p := <-h.pointCh:
					batch = append(batch, p)
				default:
					break drain
				}
			}
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			flush(flushCtx)
			cancel()
			return ctx.Err()
		case p := <-h.pointCh:
			batch = append(batch, p)
			if len(batch) >= h.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Close closes the writer if it holds a connection. Call it after Run
// has returned.
func (h *Historian) Close() error {
	if c, ok := h.Writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// PointFromRecord converts a record to a point. Records without
// telemetry yield nil.
func PointFromRecord(rec beacon.Record, t time.Time) *influxdb3.Point {
	tags := map[string]string{
		"address": rec.Address().String(),
		"tag":     string(rec.Tag()),
	}
	fields := map[string]any{"rssi": int64(rec.RSSI())}
	switch r := rec.(type) {
	case *beacon.Environmental:
		fields["temperature"] = r.Temperature
		fields["humidity"] = r.Humidity
		fields["pressure"] = r.Pressure
		fields["light"] = int64(r.Light)
	case *beacon.Motion:
		fields["accel_x"] = r.AccelX
		fields["accel_y"] = r.AccelY
		fields["accel_z"] = r.AccelZ
		fields["orient_x"] = r.OrientX
		fields["orient_y"] = r.OrientY
		fields["orient_z"] = r.OrientZ
		fields["orient_w"] = r.OrientW
	case *beacon.Battery:
		fields["volts"] = r.Volts
	case *beacon.LegacyTemperature:
		fields["record_type"] = int64(r.RecordType)
		fields["record_number"] = int64(r.RecordNumber)
		fields["contact_open"] = r.ContactOpen
		if r.HasTemperature {
			fields["temperature"] = r.Temperature
		}
		if r.HasBattery {
			fields["volts"] = r.BatteryVolts
		}
	default:
		return nil
	}
	return influxdb3.NewPoint(rec.Family().String(), tags, fields, t)
}
