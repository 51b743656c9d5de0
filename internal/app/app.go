// Package app wires the daemon together: config, logging, the GitHub client,
// the poll loop, the activation listener and the optional debug server, all
// hosted under one supervisor.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ghnotifyd/internal/config"
	"ghnotifyd/internal/dedup"
	"ghnotifyd/internal/desktop"
	"ghnotifyd/internal/github"
	"ghnotifyd/internal/metrics"
	"ghnotifyd/internal/notify"
	"ghnotifyd/internal/observability/debug"
	"ghnotifyd/internal/poller"
	"ghnotifyd/internal/runtime/supervisor"
	"ghnotifyd/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	client     *github.Client
	tracker    *dedup.Tracker
	surface    *desktop.Surface
	dispatcher *notify.Dispatcher
	listener   *notify.Listener
	poller     *poller.Poller
	debug      *debug.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	cfgm.SetValidator(validate)

	durs, err := cfg.ParseDurations()
	if err != nil {
		return nil, err
	}
	token, err := cfg.ResolveToken()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mc := metrics.NewCollector(reg)

	client := github.New(github.Config{
		Token:     token,
		APIURL:    cfg.GitHub.APIURL,
		UserAgent: cfg.GitHub.UserAgent,
		Timeout:   durs.RequestTimeout,
	}, mc, logs.Logger().With(logx.String("comp", "github")))

	surface, err := desktop.NewSurface(desktop.SurfaceConfig{
		AppName:       cfg.Notify.AppName,
		Icon:          cfg.Notify.Icon,
		ExpireTimeout: durs.ExpireTimeout,
	}, logs.Logger().With(logx.String("comp", "surface")))
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("notification surface: %w", err)
	}

	tracker := dedup.New()
	dispatcher := notify.NewDispatcher(surface, mc, logs.Logger().With(logx.String("comp", "dispatch")))
	opener := desktop.NewCommandOpener(cfg.Notify.OpenCommand, logs.Logger().With(logx.String("comp", "opener")))
	listener := notify.NewListener(surface, dispatcher, client, opener, logs.Logger().With(logx.String("comp", "listener")))

	cadence, err := poller.ParseCadence(durs.Interval, cfg.Poll.Schedule)
	if err != nil {
		_ = surface.Close()
		logs.Close()
		return nil, err
	}
	pol := poller.New(poller.Config{
		Cadence:    cadence,
		BackoffMax: durs.BackoffMax,
	}, client, tracker, dispatcher, mc, logs.Logger().With(logx.String("comp", "poller")))

	a := &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logs,
		client:     client,
		tracker:    tracker,
		surface:    surface,
		dispatcher: dispatcher,
		listener:   listener,
		poller:     pol,
	}
	a.debug = debug.New(debug.Config{
		Enabled:       cfg.Debug.Enabled,
		Addr:          cfg.Debug.Addr,
		Token:         cfg.Debug.Token,
		AllowInsecure: cfg.Debug.AllowInsecure,
	}, reg, a.Err, logs.Logger().With(logx.String("comp", "debug")))

	return a, nil
}

// Start launches all workers. The returned error covers startup only; runtime
// failures surface via Done()/Err().
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.logs.Logger().With(logx.String("comp", "supervisor"))),
		// A fatal poller error (rejected credential) must stop everything.
		supervisor.WithCancelOnError(true),
	)

	a.sup.Go("poller", a.poller.Run)
	a.sup.Go("activation.listener", a.listener.Run)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.apply", a.applyLoop)
	if a.debug.Enabled() {
		a.sup.GoRestart("debug.serve", a.debug.Run,
			supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}
	a.startWatchdog()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify: ready")
	}

	a.log.Info("started")
	return nil
}

// Done is closed when any worker fails fatally or the parent context ends.
func (a *App) Done() <-chan struct{} { return a.sup.Context().Done() }

// Err returns the first fatal worker error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	_ = a.surface.Close()
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

// applyLoop applies validated config edits. Only logging is hot-swappable;
// credential and polling changes need a restart and are called out as such.
func (a *App) applyLoop(ctx context.Context) {
	ch := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(ch)

	prev := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(mapLoggingConfig(cfg.Logging))
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))

			if prev != nil && (cfg.GitHub != prev.GitHub || cfg.Poll != prev.Poll || cfg.Notify != prev.Notify || cfg.Debug != prev.Debug) {
				a.log.Warn("non-logging config changed; restart required to take effect")
			}
			prev = cfg
		}
	}
}

// startWatchdog feeds the systemd watchdog at half the configured interval
// when the unit enables one.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("watchdog", func(ctx context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func mapLoggingConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
		Journal: logx.JournalConfig{
			Enabled:  c.Journal.Enabled,
			MinLevel: c.Journal.MinLevel,
		},
	}
}

// validate is the watch-time gate: a reloaded file must be as usable as a
// startup one before it is committed.
func validate(_ context.Context, cfg *config.Config) error {
	durs, err := cfg.ParseDurations()
	if err != nil {
		return err
	}
	if _, err := poller.ParseCadence(durs.Interval, cfg.Poll.Schedule); err != nil {
		return err
	}
	if _, err := cfg.ResolveToken(); err != nil {
		return err
	}
	return nil
}
