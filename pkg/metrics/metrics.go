// Package metrics exposes gateway counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/beacongw/pkg/cloud"
	fx "github.com/robotalks/beacongw/pkg/framework"
)

const namespace = "beacongw"

// Metrics holds all gateway collectors. It implements cloud.Observer.
// Methods are called on the reactor thread only.
type Metrics struct {
	RecordsDecoded   *prometheus.CounterVec
	RecordsRejected  *prometheus.CounterVec
	Duplicates       prometheus.Counter
	DevicesRejected  *prometheus.CounterVec
	UartOverruns     prometheus.Counter
	UartBytes        prometheus.Counter
	Devices          prometheus.Gauge
	HellosSent       prometheus.Counter
	SessionState     prometheus.Gauge
	Published        prometheus.Counter
	Dropped          *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	HistorianDropped prometheus.Counter
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsDecoded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_decoded_total",
			Help:      "Total number of decoded beacon records",
		}, []string{"tag"}),
		RecordsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Total number of records the decoder rejected",
		}, []string{"reason"}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_duplicate_total",
			Help:      "Total number of repeated legacy advertisements",
		}),
		DevicesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "devices_rejected_total",
			Help:      "Total number of records from devices the registry refused",
		}, []string{"cause"}),
		UartOverruns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uart_overruns_total",
			Help:      "Total number of receive buffer overruns",
		}),
		UartBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uart_read_bytes_total",
			Help:      "Total number of bytes read from the UART",
		}),
		Devices: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_devices",
			Help:      "Number of occupied registry slots",
		}),
		HellosSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hello_sent_total",
			Help:      "Total number of hello messages sent",
		}),
		SessionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Cloud session state: 0 unprovisioned, 1 handshaking, 2 ready, 3 suspended",
		}),
		Published: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_published_total",
			Help:      "Total number of telemetry messages handed to the transport",
		}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_dropped_total",
			Help:      "Total number of telemetry payloads dropped",
		}, []string{"cause"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "telemetry_buffered",
			Help:      "Payloads waiting in the publish queue",
		}),
		HistorianDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "historian_dropped_total",
			Help:      "Total number of points the historian could not queue",
		}),
	}
}

// HelloSent implements cloud.Observer.
func (m *Metrics) HelloSent() {
	m.HellosSent.Inc()
}

// SessionStateChanged implements cloud.Observer.
func (m *Metrics) SessionStateChanged(s cloud.State) {
	m.SessionState.Set(float64(s))
}

// TelemetryPublished implements cloud.Observer.
func (m *Metrics) TelemetryPublished() {
	m.Published.Inc()
}

// TelemetryDropped implements cloud.Observer.
func (m *Metrics) TelemetryDropped(cause string) {
	m.Dropped.WithLabelValues(cause).Inc()
}

// TelemetryQueued implements cloud.Observer.
func (m *Metrics) TelemetryQueued(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// Server serves the metrics endpoint. It implements framework.Runnable.
type Server struct {
	Addr    string
	Handler http.Handler
}

// NewServer creates a Server exposing gatherer at /metrics.
func NewServer(addr string, gatherer prometheus.Gatherer) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return &Server{Addr: addr, Handler: router}
}

// Name implements framework.Named.
func (s *Server) Name() string {
	return "metrics"
}

// Run implements framework.Runnable.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return fx.RunWithContextCancel(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}, func() error {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
}
