package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"imgworker/internal/archive"
	"imgworker/internal/broadcast"
	"imgworker/internal/codec"
	"imgworker/internal/command"
	"imgworker/internal/config"
	"imgworker/internal/daemon"
	"imgworker/internal/engine"
	"imgworker/internal/ipc"
	"imgworker/internal/logging"
	"imgworker/internal/manifest"
	"imgworker/internal/notifications"
	"imgworker/internal/optimize"
	"imgworker/internal/orchestrator"
	"imgworker/internal/preflight"
	"imgworker/internal/stage"
	"imgworker/internal/store"
	"imgworker/internal/upload"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Replace starts a waiting worker when another instance holds the lock.
	Replace bool
}

// Run starts the imgworker daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	fileLogger, fileErr := logging.New(logging.Options{
		Level:            level,
		Format:           "json",
		OutputPaths:      []string{cfg.LogPath()},
		ErrorOutputPaths: []string{cfg.LogPath()},
	})
	if fileErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to open log file: %v\n", fileErr)
	} else {
		logger = logging.TeeLogger(logger, fileLogger.Handler())
	}

	rt, err := build(signalCtx, cfg, opts, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	logPreflight(signalCtx, cfg, logger)

	mode, err := rt.daemon.Acquire()
	if err != nil {
		return err
	}

	socketPath := cfg.SocketPath()
	if mode == daemon.ModeWaiting {
		if err := rt.waitForActivation(signalCtx, cfg.WaitingSocketPath()); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}

	ipcServer, err := ipc.NewServer(signalCtx, socketPath, rt.daemon, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := rt.daemon.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	select {
	case <-signalCtx.Done():
	case <-rt.daemon.Done():
	}
	logger.Info("imgworker daemon shutting down", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

type runtime struct {
	daemon *daemon.Daemon
	sink   *broadcast.KafkaSink
	logger *slog.Logger
}

func build(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (*runtime, error) {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	notifier := notifications.NewService(cfg)

	var st *store.Store
	imaging := codec.New(codec.Options{
		JPEGQuality: cfg.Codec.JPEGQuality,
		WebPQuality: cfg.Codec.WebPQuality,
		CWebPBinary: cfg.Codec.CWebPBinary,
		CodecsPath:  func() string { return st.State().Settings.CodecsPath },
		Client:      httpClient,
		Logger:      logger,
	})
	optimizer := optimize.New(imaging, logger)
	uploader := upload.NewClient(httpClient, cfg.RequestTimeout(), cfg.RetryStrategy(), logger)

	checkers := []stage.Checker{imaging}
	var saver archive.Saver
	if cfg.Storage.Enabled {
		storage, err := archive.NewStorage(ctx, cfg.Storage)
		if err != nil {
			logging.WarnWithContext(logger, "archive storage unavailable", "archive_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check storage endpoint and credentials"),
				logging.String(logging.FieldImpact, "variants are uploaded without an archive copy"),
			)
		} else {
			saver = storage
			checkers = append(checkers, storage)
		}
	}
	pipeline := upload.NewPipeline(uploader, saver, notifier, logger)

	st = store.New(store.State{Settings: cfg.Settings()},
		store.Logger(logger),
		engine.Middleware(logger),
		optimizer.Middleware(),
		upload.Handoff(),
		pipeline.Middleware(),
	)

	hub := broadcast.NewHub(0)
	rt := &runtime{logger: logger}
	if cfg.EventsEnabled() {
		rt.sink = broadcast.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, cfg.RetryStrategy(), logger)
		hub.AddObserver(rt.sink)
		go rt.sink.Run(ctx)
	}

	reconciler := manifest.New(st, httpClient, logger)
	router := command.NewRouter(logger)
	var d *daemon.Daemon
	orch := orchestrator.New(st, reconciler, hub, orchestrator.Options{
		Floor:         cfg.PollFloor(),
		Step:          cfg.PollStep(),
		ConfigTimeout: cfg.ConfigTimeout(),
		Activate:      func() { d.Activate() },
		Notifier:      notifier,
	}, logger)
	router.AddHandler(orchestrator.ConfigHandler(st, logger))
	router.AddHandler(orch.Handler())

	d, err := daemon.New(daemon.Options{
		Config:       cfg,
		Store:        st,
		Hub:          hub,
		Router:       router,
		Orchestrator: orch,
		Checkers:     checkers,
		Replace:      opts.Replace,
		Logger:       logger,
	})
	if err != nil {
		if rt.sink != nil {
			_ = rt.sink.Close()
		}
		st.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	rt.daemon = d
	return rt, nil
}

// waitForActivation serves the waiting socket until skip-waiting hands the
// lock over.
func (rt *runtime) waitForActivation(ctx context.Context, path string) error {
	server, err := ipc.NewServer(ctx, path, rt.daemon, rt.logger)
	if err != nil {
		return fmt.Errorf("start waiting IPC server: %w", err)
	}
	defer server.Close()
	server.Serve()
	rt.logger.Info("worker waiting for skip-waiting",
		logging.String("socket", path),
		logging.String(logging.FieldEventType, "worker_waiting"),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-rt.daemon.Done():
		return context.Canceled
	case <-rt.daemon.Activated():
		return nil
	}
}

func (rt *runtime) close() {
	rt.daemon.Close()
	if rt.sink != nil {
		if err := rt.sink.Close(); err != nil {
			rt.logger.Debug("event sink close failed", logging.Error(err))
		}
		if dropped := rt.sink.Dropped(); dropped > 0 {
			rt.logger.Warn("events dropped before delivery", logging.Int64("dropped", dropped))
		}
	}
}

func logPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Debug("preflight passed", logging.String("check", result.Name))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		logger.Info("dependency snapshot",
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.String("dependency", dep.Name),
			logging.Bool("available", dep.Available),
			logging.String("binary", dep.Command),
		)
	}
}
