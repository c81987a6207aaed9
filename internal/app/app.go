package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/five82/leafrun/internal/api"
	"github.com/five82/leafrun/internal/config"
	"github.com/five82/leafrun/internal/connectivity"
	"github.com/five82/leafrun/internal/controller"
	"github.com/five82/leafrun/internal/localstore"
	"github.com/five82/leafrun/internal/logging"
	"github.com/five82/leafrun/internal/metrics"
	"github.com/five82/leafrun/internal/prefs"
	"github.com/five82/leafrun/internal/queue"
	"github.com/five82/leafrun/internal/state"
	"github.com/five82/leafrun/internal/syncer"
	"github.com/five82/leafrun/internal/ui"
)

// Options configure a leafrun runtime.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/leafrun/prefs.toml
	Version    string
	// Offline pins connectivity to offline; nothing is sent to the server.
	Offline bool
	// Debug forces the debug log level.
	Debug bool
	// LogToFile sends logs to <data_dir>/leafrun.log instead of LogWriter.
	LogToFile bool
	// LogWriter receives logs when LogToFile is false; nil means stderr.
	LogWriter io.Writer
	// Override adjusts the loaded configuration, e.g. from CLI flags.
	Override func(*config.Config)
}

// Runtime is the wired set of components shared by the TUI and the CLI.
type Runtime struct {
	Config     config.Config
	Store      *localstore.Store
	Queue      *queue.Manager
	Oracle     connectivity.Oracle
	Client     *api.Client
	Engine     *syncer.Engine
	Controller *controller.Controller
	View       *state.Store
	Registry   *prometheus.Registry
	Logger     *zap.SugaredLogger

	monitor *connectivity.Monitor
	logFile *os.File
}

// Open loads configuration and wires every component. It performs no network
// I/O; call Controller.Load to fetch the route.
func Open(opts Options) (*Runtime, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Override != nil {
		opts.Override(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if opts.Debug {
		cfg.LogLevel = "debug"
	}

	rt := &Runtime{Config: cfg, View: &state.Store{}}

	writer := opts.LogWriter
	if opts.LogToFile {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath()), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		rt.logFile = f
		writer = f
	}
	logging.Initialize(logging.New(cfg.LogLevel, logging.ParseFormat(cfg.LogFormat), writer))
	rt.Logger = logging.For("app")

	if cfg.StoreBackend != localstore.BackendMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			rt.closeLog()
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	backend, err := localstore.Open(cfg.StoreBackend, cfg.DataDir, logging.For("localstore"))
	if err != nil {
		rt.closeLog()
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	rt.Store = localstore.New(backend,
		localstore.WithNamespace(cfg.Namespace),
		localstore.WithLogger(logging.For("localstore")),
	)

	rt.Registry = metrics.NewRegistry()
	syncMetrics := syncer.NewMetrics(rt.Registry)

	rt.Queue = queue.NewManager(rt.Store,
		queue.WithLogger(logging.For("queue")),
		queue.WithObserver(syncMetrics.SetPending),
	)
	syncMetrics.SetPending(rt.Queue.Len())

	var observe func(error)
	if opts.Offline {
		rt.Oracle = connectivity.NewManual(false)
	} else {
		addr, err := connectivity.HostPort(cfg.APIBase)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("api_base: %w", err)
		}
		rt.monitor = connectivity.NewMonitor(
			connectivity.DialProber(addr, cfg.RequestTimeout),
			connectivity.WithInterval(cfg.ProbeInterval),
			connectivity.WithLogger(logging.For("connectivity")),
		)
		rt.Oracle = rt.monitor
		observe = func(err error) {
			if err != nil {
				rt.monitor.ReportFailure(err)
				return
			}
			rt.monitor.ReportSuccess()
		}
	}

	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = "dev"
	}
	rt.Client, err = api.NewClient(api.Options{
		BaseURL:     cfg.APIBase,
		RoutesPath:  cfg.RoutesPath,
		ReportsPath: cfg.ReportsPath,
		InitPath:    cfg.InitPath,
		Timeout:     cfg.RequestTimeout,
		UserAgent:   "leafrun/" + version,
		Observe:     observe,
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("init api client: %w", err)
	}

	rt.Engine = syncer.New(rt.Queue, rt.Store, rt.Oracle,
		syncer.WithActionTimeout(cfg.RequestTimeout),
		syncer.WithLogger(logging.For("syncer")),
		syncer.WithMetrics(syncMetrics),
	)
	rt.Controller = controller.New(controller.Options{
		Store:           rt.Store,
		Queue:           rt.Queue,
		Engine:          rt.Engine,
		Remote:          rt.Client,
		Oracle:          rt.Oracle,
		View:            rt.View,
		PromoterID:      cfg.PromoterID,
		PriorityKeyword: cfg.PriorityKeyword,
		RequestTimeout:  cfg.RequestTimeout,
		Logger:          logging.For("controller"),
	})

	rt.Logger.Debugw("runtime ready",
		"backend", cfg.StoreBackend,
		"api", cfg.APIBase,
		"offline", opts.Offline,
		"pending", rt.Queue.Len(),
	)
	return rt, nil
}

// Probe runs one connectivity check so CLI commands see a current state.
func (r *Runtime) Probe(ctx context.Context) {
	if r.monitor != nil {
		r.monitor.Check(ctx)
	}
}

// Background runs the connectivity monitor, the sync loop and the metrics
// server until ctx is cancelled.
func (r *Runtime) Background(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if r.monitor != nil {
		g.Go(func() error { return r.monitor.Run(gctx) })
	}
	g.Go(func() error {
		RunSyncLoop(gctx, r.Controller, r.Oracle, r.Queue, r.Config.SyncInterval, logging.For("sync-loop"))
		return nil
	})
	if addr := strings.TrimSpace(r.Config.MetricsAddr); addr != "" {
		g.Go(func() error {
			return metrics.NewServer(addr, r.Registry, logging.For("metrics")).Run(gctx)
		})
	}
	return g.Wait()
}

// RunTUI loads the route, starts background work and blocks in the TUI
// until the user quits or ctx is cancelled.
func (r *Runtime) RunTUI(ctx context.Context, prefsPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	userPrefs, err := prefs.Load(prefsPath)
	if err != nil {
		r.Logger.Warnw("preferences unreadable, using defaults", "error", err)
	}

	r.Probe(ctx)
	r.Controller.SetOnline(r.Oracle.IsOnline())
	if err := r.Controller.Load(ctx); err != nil {
		r.Logger.Warnw("initial route load failed", "error", err)
	}

	bg := make(chan error, 1)
	go func() { bg <- r.Background(ctx) }()

	uiErr := ui.Run(ui.Options{
		Context:    ctx,
		Controller: r.Controller,
		Store:      r.View,
		Config:     &r.Config,
		Prefs:      userPrefs,
		PrefsPath:  prefsPath,
	})
	cancel()
	if err := <-bg; err != nil && !errors.Is(err, context.Canceled) {
		r.Logger.Warnw("background work stopped with error", "error", err)
	}
	return uiErr
}

// Close flushes logs and releases the store.
func (r *Runtime) Close() error {
	var err error
	if r.Store != nil {
		err = r.Store.Close()
	}
	_ = logging.Sync()
	r.closeLog()
	return err
}

func (r *Runtime) closeLog() {
	if r.logFile != nil {
		_ = r.logFile.Close()
		r.logFile = nil
	}
}
