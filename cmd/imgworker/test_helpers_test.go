package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imgworker/internal/broadcast"
	"imgworker/internal/command"
	"imgworker/internal/config"
	"imgworker/internal/daemon"
	"imgworker/internal/engine"
	"imgworker/internal/ipc"
	"imgworker/internal/logging"
	"imgworker/internal/orchestrator"
	"imgworker/internal/store"
)

type noRefresh struct{}

func (noRefresh) Refresh(context.Context) bool { return true }

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	runtimeDir := filepath.Join(base, "run")
	configPath := filepath.Join(base, "imgworker.toml")
	content := fmt.Sprintf("[paths]\nruntime_dir = %q\n\n[poll]\nupdate_timeout_seconds = 1\n", runtimeDir)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	logger := logging.NewNop()
	st := store.New(store.State{Settings: cfg.Settings()}, engine.Middleware(logger))
	hub := broadcast.NewHub(32)
	router := command.NewRouter(logger)
	var d *daemon.Daemon
	orch := orchestrator.New(st, noRefresh{}, hub, orchestrator.Options{
		Floor:    time.Hour,
		Step:     time.Hour,
		Activate: func() { d.Activate() },
	}, logger)
	router.AddHandler(orchestrator.ConfigHandler(st, logger))
	router.AddHandler(orch.Handler())
	d, err = daemon.New(daemon.Options{
		Config:       cfg,
		Store:        st,
		Hub:          hub,
		Router:       router,
		Orchestrator: orch,
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if _, err := d.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("unix sockets unavailable: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      st,
		daemon:     d,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
