package daemon

import (
	"context"
	"os"
	"time"

	"imgworker/internal/deps"
	"imgworker/internal/preflight"
	"imgworker/internal/queue"
	"imgworker/internal/stage"
	"imgworker/internal/store"
)

// Status represents daemon runtime information.
type Status struct {
	Mode         Mode           `json:"mode"`
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	LockPath     string         `json:"lock_path"`
	LogPath      string         `json:"log_path"`
	StartedAt    time.Time      `json:"started_at,omitempty"`
	Halted       bool           `json:"halted"`
	Observers    int            `json:"observers"`
	PollInterval time.Duration  `json:"poll_interval"`
	Settings     store.Settings `json:"settings"`
	Queue        []queue.View   `json:"queue"`
	Components   []stage.Health `json:"components,omitempty"`
	Dependencies []deps.Status  `json:"dependencies,omitempty"`
}

// Status snapshots the daemon.
func (d *Daemon) Status(ctx context.Context) Status {
	state := d.store.State()
	d.mu.Lock()
	mode, started := d.mode, d.startedAt
	d.mu.Unlock()
	return Status{
		Mode:         mode,
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockPath:     d.cfg.LockPath(),
		LogPath:      d.cfg.LogPath(),
		StartedAt:    started,
		Halted:       state.Halted,
		Observers:    d.hub.Clients(),
		PollInterval: d.orch.Scheduler().Current(),
		Settings:     state.Settings,
		Queue:        queue.Snapshot(state.Queue),
		Components:   stage.Collect(ctx, d.checkers...),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
}
