// Package gateway wires the UART, registry, cloud session and
// publisher onto one reactor thread.
package gateway

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/robotalks/beacongw/pkg/beacon"
	"github.com/robotalks/beacongw/pkg/cloud"
	fx "github.com/robotalks/beacongw/pkg/framework"
	"github.com/robotalks/beacongw/pkg/historian"
	"github.com/robotalks/beacongw/pkg/metrics"
	"github.com/robotalks/beacongw/pkg/registry"
	"github.com/robotalks/beacongw/pkg/serial"
	"github.com/robotalks/beacongw/pkg/store"
	"github.com/robotalks/beacongw/pkg/telemetry"
)

// Drop causes for devices the registry refused.
const (
	DeviceUnauthorized = "unauthorized"
	DeviceRegistryFull = "full"
)

type stopMessage struct{}

type suspendMessage struct{}

type resumeMessage struct{}

// Gateway is the supervisor. All fields below the hooks are owned by
// the reactor thread once Run starts.
type Gateway struct {
	Config   *Config
	Clock    fx.Clock
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	// OpenUart returns a non-blocking descriptor for the receiver.
	OpenUart func() (int, error)
	// NewTransport creates the cloud transport posting to sink.
	NewTransport func(sink cloud.EventSink) (cloud.Transport, error)
	// NewHistorian creates the historian, nil when disabled.
	NewHistorian func() (*historian.Historian, error)

	term      fx.Termination
	reactor   *fx.Reactor
	uartFd    int
	uart      *serial.Channel
	telemetry *fx.Timer
	hello     *fx.Timer
	retry     *fx.Timer
	inbox     *fx.Mailbox
	transport cloud.Transport
	store     *store.Store
	historian *historian.Historian
	runner    *fx.Runner

	devices   *registry.Registry
	session   *cloud.Session
	publisher *cloud.Publisher
	cloudConf cloud.Config
	logLimit  *rate.Limiter
}

// New creates a Gateway with production hooks.
func New(conf *Config) *Gateway {
	reg := prometheus.NewRegistry()
	g := &Gateway{
		Config:   conf,
		Clock:    fx.SystemClock,
		Registry: reg,
		Metrics:  metrics.New(reg),
		uartFd:   -1,
		logLimit: rate.NewLimiter(rate.Every(5*time.Second), 3),
	}
	g.OpenUart = func() (int, error) {
		return serial.OpenPort(conf.UART, conf.Baud)
	}
	g.NewTransport = conf.NewTransport
	g.NewHistorian = g.dialHistorian
	return g
}

// Termination returns the stop request shared with signal handlers.
func (g *Gateway) Termination() *fx.Termination {
	return &g.term
}

// Init builds every component. The returned error is an *InitError
// carrying the exit code.
func (g *Gateway) Init() error {
	conf := g.Config
	if err := conf.Validate(); err != nil {
		return initError(InitConfig, err)
	}
	g.cloudConf, _ = conf.CloudConfig()
	mode, _ := cloud.ParseMode(conf.PublishMode)

	var err error
	if g.reactor, err = fx.NewReactor(); err != nil {
		return initError(InitEventLoop, err)
	}

	if g.uartFd, err = g.OpenUart(); err != nil {
		g.uartFd = -1
		return initError(InitUart, err)
	}
	g.uart = serial.NewChannel(g.uartFd, conf.RingCapacity, serial.HandleRecordFunc(g.handleRecord))
	g.uart.OnOverrun = g.Metrics.UartOverruns.Inc
	if _, err = g.reactor.Register("uart", g.uartFd, fx.EventReadable, fx.HandleEventFunc(g.handleUart)); err != nil {
		return initError(InitRegisterUart, err)
	}

	if g.telemetry, err = g.reactor.NewTimer("telemetry", fx.HandleTimerFunc(g.handleTelemetryTimer)); err != nil {
		return initError(InitTelemetryTimer, err)
	}
	if err = g.telemetry.SetPeriod(g.cloudConf.TelemetryPeriod); err != nil {
		return initError(InitTelemetryTimer, err)
	}
	if g.hello, err = g.reactor.NewTimer("hello", fx.HandleTimerFunc(g.handleHelloTimer)); err != nil {
		return initError(InitHelloTimer, err)
	}
	if g.retry, err = g.reactor.NewTimer("retry", fx.HandleTimerFunc(g.handleRetryTimer)); err != nil {
		return initError(InitRetryTimer, err)
	}

	if g.inbox, err = g.reactor.NewMailbox("inbox", fx.HandleMessageFunc(g.handleMessage)); err != nil {
		return initError(InitInbox, err)
	}
	g.inbox.OnError = func(err error) { g.fail(InboxConsume, err) }
	g.term.OnRequest = func() { g.inbox.Post(stopMessage{}) }

	g.devices = registry.New(g.cloudConf.Policy())
	if g.transport, err = g.NewTransport(g.inbox); err != nil {
		return initError(InitTransport, err)
	}
	g.session = cloud.NewSession(g.transport, g.hello)
	g.session.HelloPeriod = conf.HelloPeriod
	g.session.Clock = g.Clock
	g.session.Observer = g.Metrics
	g.session.OnReady = g.flush
	g.publisher = cloud.NewPublisher(g.session, g.transport)
	g.publisher.Mode = mode
	g.publisher.Depth = conf.BufferDepth
	g.publisher.Clock = g.Clock
	g.publisher.Observer = g.Metrics

	if conf.SessionStore != "" {
		if g.store, err = store.Open(conf.SessionStore); err != nil {
			return initError(InitSessionStore, err)
		}
		rec, err := g.store.LoadSession()
		if err != nil {
			return initError(InitSessionStore, err)
		}
		if rec != nil {
			glog.Infof("last session %s", rec)
			g.session.Restore(rec.Sid, rec.Dtg)
		}
		g.session.Store = g.store
	}

	if g.historian, err = g.NewHistorian(); err != nil {
		return initError(InitHistorian, err)
	}

	g.runner = fx.NewRunner()
	if g.historian != nil {
		g.historian.OnDrop = g.Metrics.HistorianDropped.Inc
		g.runner.Go(g.historian)
	}
	if conf.MetricsAddr != "" {
		g.runner.Go(metrics.NewServer(conf.MetricsAddr, g.Registry))
	}

	if err = g.transport.Start(); err != nil {
		return initError(InitTransport, err)
	}
	glog.Infof("gateway %s: uart %s, cloud %s, publish %s", conf.DeviceID, conf.UART, conf.CloudURL, mode)
	return nil
}

// Run runs the reactor until a stop is requested and returns the exit
// code.
func (g *Gateway) Run() ExitCode {
	if err := g.reactor.RunUntil(&g.term); err != nil {
		glog.Errorf("event loop: %v", err)
		g.term.Request(int(MainEventLoopFail))
	}
	code := ExitCode(g.term.Code())
	glog.Infof("stopped: %s", code)
	return code
}

// Stop requests a stop with code. Safe from any goroutine.
func (g *Gateway) Stop(code ExitCode) {
	g.term.Request(int(code))
}

// Suspend pauses the cloud session. Safe from any goroutine.
func (g *Gateway) Suspend() {
	g.inbox.Post(suspendMessage{})
}

// Resume resumes the cloud session. Safe from any goroutine.
func (g *Gateway) Resume() {
	g.inbox.Post(resumeMessage{})
}

// HandleSignals maps SIGINT/SIGTERM to a clean stop and
// SIGUSR1/SIGUSR2 to Suspend/Resume. The returned func stops delivery.
func (g *Gateway) HandleSignals() func() {
	stopTerm := g.term.HandleSignals()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2)
	doneCh := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGUSR1 {
					g.Suspend()
				} else {
					g.Resume()
				}
			case <-doneCh:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(doneCh)
		stopTerm()
	}
}

// Close releases everything Init created.
func (g *Gateway) Close() error {
	var errs fx.AggregatedError
	if g.transport != nil {
		errs.Add(g.transport.Close())
	}
	if g.runner != nil {
		errs.Add(g.runner.Stop())
	}
	if g.historian != nil {
		errs.Add(g.historian.Close())
	}
	if g.store != nil {
		errs.Add(g.store.Close())
	}
	for _, t := range []*fx.Timer{g.telemetry, g.hello, g.retry} {
		if t != nil {
			errs.Add(t.Close())
		}
	}
	if g.inbox != nil {
		errs.Add(g.inbox.Close())
	}
	if g.uartFd >= 0 {
		errs.Add(unix.Close(g.uartFd))
		g.uartFd = -1
	}
	if g.reactor != nil {
		errs.Add(g.reactor.Close())
	}
	return errs.Aggregate()
}

func (g *Gateway) fail(code ExitCode, err error) {
	glog.Errorf("%s: %v", code, err)
	g.term.Request(int(code))
}

func (g *Gateway) dialHistorian() (*historian.Historian, error) {
	if g.Config.Influx.URL == "" {
		return nil, nil
	}
	client, err := historian.Dial(g.Config.Influx)
	if err != nil {
		return nil, err
	}
	return historian.New(client, historian.DefaultBatchSize), nil
}

func (g *Gateway) handleUart(*fx.Registration, fx.Events) {
	before := g.uart.Stats().Bytes
	err := g.uart.Drain()
	g.Metrics.UartBytes.Add(float64(g.uart.Stats().Bytes - before))
	switch {
	case err == nil:
	case errors.Is(err, serial.ErrClosed):
		g.fail(UartClosed, err)
	default:
		g.fail(UartRead, err)
	}
}

func (g *Gateway) handleRecord(line []byte) {
	rec, err := beacon.Decode(line)
	if err != nil {
		g.Metrics.RecordsRejected.WithLabelValues(beacon.ReasonOf(err).String()).Inc()
		if g.logLimit.Allow() {
			glog.Warningf("uart: %v", err)
		}
		return
	}
	g.Metrics.RecordsDecoded.WithLabelValues(string(rec.Tag())).Inc()
	index, isNew, err := g.devices.LookupOrPlace(rec.Address())
	if err != nil {
		cause := DeviceRegistryFull
		if err == registry.ErrRejected {
			cause = DeviceUnauthorized
		}
		g.Metrics.DevicesRejected.WithLabelValues(cause).Inc()
		if g.logLimit.Allow() {
			glog.Warningf("beacon %s: %v", rec.Address(), err)
		}
		return
	}
	if isNew {
		glog.Infof("beacon %s placed in slot %d", rec.Address(), index)
		g.Metrics.Devices.Set(float64(g.devices.Len()))
	}
	if seq, ok := rec.(beacon.Sequenced); ok && g.devices.IsDuplicate(index, seq.Sequence()) {
		g.Metrics.Duplicates.Inc()
		glog.V(2).Infof("beacon %s: duplicate record %d", rec.Address(), seq.Sequence())
		return
	}
	glog.V(2).Infof("beacon %s %s rssi %d", rec.Address(), rec.Tag(), rec.RSSI())
	g.devices.Apply(index, rec)
	if g.historian != nil {
		g.historian.Record(rec, g.Clock.Now())
	}
}

func (g *Gateway) handleTelemetryTimer(t *fx.Timer) {
	if _, err := t.Consume(); err != nil {
		g.fail(TelemetryTimerConsume, err)
		return
	}
	g.publishFresh()
}

func (g *Gateway) publishFresh() {
	for _, snap := range g.devices.DrainFresh() {
		payloads, err := telemetry.Snapshot(snap)
		if err != nil {
			glog.Warningf("telemetry: %v", err)
		}
		for _, p := range payloads {
			if err := g.publisher.Publish(p.Body); err == cloud.ErrWouldBlock {
				g.armRetry()
			}
		}
	}
}

func (g *Gateway) handleHelloTimer(t *fx.Timer) {
	if _, err := t.Consume(); err != nil {
		g.fail(HelloTimerConsume, err)
		return
	}
	g.session.HelloTick()
}

func (g *Gateway) handleRetryTimer(t *fx.Timer) {
	if _, err := t.Consume(); err != nil {
		g.fail(RetryTimerConsume, err)
		return
	}
	g.flush()
}

func (g *Gateway) flush() {
	if err := g.publisher.Flush(); err == cloud.ErrWouldBlock {
		g.armRetry()
	}
}

func (g *Gateway) armRetry() {
	if err := g.retry.SetOneShot(g.Config.RetryDelay); err != nil {
		glog.Errorf("retry timer: %v", err)
	}
}

func (g *Gateway) handleMessage(msg fx.Message) {
	switch m := msg.(type) {
	case cloud.Event:
		g.handleCloudEvent(m)
	case suspendMessage:
		g.session.Suspend()
	case resumeMessage:
		g.session.Resume()
	case stopMessage:
		// wakes the reactor so the stop flag is sampled
	default:
		glog.Warningf("inbox: unexpected message %T", msg)
	}
}

func (g *Gateway) handleCloudEvent(ev cloud.Event) {
	switch ev.Kind {
	case cloud.EventConnected:
		glog.Info("cloud connected")
		g.session.NetworkReady()
	case cloud.EventDisconnected:
		glog.Warning("cloud disconnected")
		g.session.NetworkLost()
	case cloud.EventMessage:
		if err := g.session.HandleMessage(ev.Payload); err != nil {
			glog.Warningf("cloud message: %v", err)
		}
	case cloud.EventTwin:
		g.applyTwin(ev.Payload)
	}
}

func (g *Gateway) applyTwin(payload []byte) {
	next, err := cloud.ApplyTwin(g.cloudConf, payload)
	if err != nil {
		glog.Warningf("%v, keep current configuration", err)
		return
	}
	prev := g.cloudConf
	g.cloudConf = next
	if removed := g.devices.SetPolicy(next.Policy()); len(removed) > 0 {
		glog.Infof("policy %s removed %d devices", next.Policy().Mode, len(removed))
	}
	g.Metrics.Devices.Set(float64(g.devices.Len()))
	if next.TelemetryPeriod != prev.TelemetryPeriod {
		glog.Infof("telemetry period %s", next.TelemetryPeriod)
		if err := g.telemetry.SetPeriod(next.TelemetryPeriod); err != nil {
			glog.Errorf("telemetry timer: %v", err)
		}
	}
	if err := g.transport.ReportTwin(next.Reported()); err != nil {
		glog.Warningf("report twin: %v", err)
	}
}
