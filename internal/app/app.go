package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ticktree/internal/config"
	"ticktree/internal/eventbus"
	"ticktree/internal/observability/metrics"
	"ticktree/internal/runtime/supervisor"
	"ticktree/internal/task/scheduler"
	logx "ticktree/pkg/logx"
)

const shutdownTimeout = 5 * time.Second

// App wires config, logging, metrics and the driver into one process.
type App struct {
	cfgm *config.ConfigManager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	reg     *prometheus.Registry
	metrics *metrics.Service

	driver *scheduler.Driver
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.NewService(logConfig(cfg.Logging))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sm := scheduler.NewMetrics(reg)

	root, err := BuildTree(cfg, log.With(logx.String("comp", "nodes")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	stopTimeout, err := config.ParseDurationField("driver.stop_timeout", cfg.Driver.StopTimeout)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	drvOpts := []scheduler.DriverOption{
		scheduler.WithLogger(log),
		scheduler.WithBus(bus),
		scheduler.WithMetrics(sm),
		scheduler.WithStopTimeout(stopTimeout),
	}
	if cfg.Driver.UpdateRate > 0 {
		drvOpts = append(drvOpts, scheduler.WithUpdateRate(cfg.Driver.UpdateRate))
	}
	drv, err := scheduler.NewDriver(root, drvOpts...)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	ms := metrics.New(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Pprof:   cfg.Metrics.Pprof,
	}, reg, log.With(logx.String("comp", "metrics")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     bus,
		reg:     reg,
		metrics: ms,
		driver:  drv,
	}, nil
}

func (a *App) Driver() *scheduler.Driver { return a.driver }

func (a *App) Registry() *prometheus.Registry { return a.reg }

// Run drives the tree until ctx is done, a signal arrives or a node fails.
// Background services run under a supervisor; a failing service cancels
// the driver with its error as the cause, so the run ends as fatal_error
// and Run returns that error.
func (a *App) Run(ctx context.Context) error {
	defer func() { _ = a.logs.Close() }()

	sup := supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	cfgCh := a.cfgm.Subscribe(1)
	events, unsubscribe := a.bus.Subscribe(64)

	sup.Go("config.watch", a.cfgm.Watch)
	sup.Go0("config.reload", func(ctx context.Context) { a.reloadLoop(ctx, cfgCh) })
	sup.Go0("eventbus.log", func(ctx context.Context) { a.eventLoop(ctx, events) })
	if a.metrics.Enabled() {
		sup.Go("metrics.http", a.metrics.Run)
	}

	runErr := a.driver.Run(sup.Context())

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopErr := sup.Stop(stopCtx)
	if errors.Is(stopErr, context.DeadlineExceeded) {
		a.log.Warn("background services did not stop in time", logx.Any("counters", sup.Counters()))
	}
	unsubscribe()
	a.cfgm.Unsubscribe(cfgCh)

	// The driver already returns a service failure it was canceled with.
	if svcErr := sup.Err(); svcErr != nil && !errors.Is(runErr, svcErr) {
		runErr = errors.Join(runErr, svcErr)
	}
	return errors.Join(runErr, stopErr)
}

// reloadLoop applies hot-reloadable sections. Everything else is reported
// and waits for a restart.
func (a *App) reloadLoop(ctx context.Context, ch <-chan *config.Config) {
	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			change := config.SummarizeChange(prev, cfg)
			a.logs.Apply(logConfig(cfg.Logging))
			a.log.Info("config reloaded", append([]logx.Field{logx.String("sections", strings.Join(change.Sections, ","))}, change.Fields...)...)
			if change.RestartRequired {
				a.log.Warn("config change needs a restart to take effect")
			}
			prev = cfg
		}
	}
}

func (a *App) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			st, _ := e.Data.(eventbus.DriverState)
			if e.Type != eventbus.TypeDriverStopped {
				a.log.Debug("driver event", logx.String("type", e.Type), logx.String("state", st.State))
				continue
			}
			a.log.Info("run finished",
				logx.String("run_id", st.RunID),
				logx.String("reason", st.Reason),
				logx.Uint64("ticks", st.Ticks),
			)
		}
	}
}

func logConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled:    c.File.Enabled,
			Path:       c.File.Path,
			MaxSizeMB:  c.File.MaxSizeMB,
			MaxBackups: c.File.MaxBackups,
			MaxAgeDays: c.File.MaxAgeDays,
			Compress:   c.File.Compress,
		},
	}
}
