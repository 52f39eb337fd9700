package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"imgworker/internal/broadcast"
	"imgworker/internal/command"
	"imgworker/internal/config"
	"imgworker/internal/logging"
	"imgworker/internal/orchestrator"
	"imgworker/internal/services"
	"imgworker/internal/stage"
	"imgworker/internal/store"
)

// Mode is the daemon lifecycle position.
type Mode string

const (
	// ModeActive holds the lock and processes images.
	ModeActive Mode = "active"
	// ModeWaiting serves IPC on the waiting socket until skip-waiting.
	ModeWaiting Mode = "waiting"
)

// lockRetryDelay paces TryLockContext while a waiting worker takes over.
const lockRetryDelay = 100 * time.Millisecond

// ErrAlreadyRunning reports that another worker holds the lock.
var ErrAlreadyRunning = errors.New("another imgworker daemon instance is already running")

// Options wires the daemon's collaborators.
type Options struct {
	Config       *config.Config
	Store        *store.Store
	Hub          *broadcast.Hub
	Router       *command.Router
	Orchestrator *orchestrator.Orchestrator
	// Checkers report component health for Status.
	Checkers []stage.Checker
	// Replace starts in waiting mode when another worker is active.
	Replace bool
	Logger   *slog.Logger
}

// Daemon coordinates the worker and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	store    *store.Store
	hub      *broadcast.Hub
	router   *command.Router
	orch     *orchestrator.Orchestrator
	checkers []stage.Checker
	replace  bool
	logger   *slog.Logger

	lock *flock.Flock

	mu        sync.Mutex
	mode      Mode
	startedAt time.Time
	running   atomic.Bool

	activateOnce sync.Once
	activated    chan struct{}
	doneOnce     sync.Once
	done         chan struct{}
	closeOnce    sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a daemon. Call Acquire before Start.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Store == nil || opts.Hub == nil || opts.Router == nil || opts.Orchestrator == nil {
		return nil, errors.New("daemon requires config, store, hub, router, and orchestrator")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		cfg:       opts.Config,
		store:     opts.Store,
		hub:       opts.Hub,
		router:    opts.Router,
		orch:      opts.Orchestrator,
		checkers:  opts.Checkers,
		replace:   opts.Replace,
		logger:    logging.NewComponentLogger(opts.Logger, "daemon"),
		lock:      flock.New(opts.Config.LockPath()),
		activated: make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Acquire takes the single-instance lock. With Replace set, a held lock puts
// the daemon in waiting mode instead of failing.
func (d *Daemon) Acquire() (Mode, error) {
	ok, err := d.lock.TryLock()
	if err != nil {
		return "", fmt.Errorf("acquire lock: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case ok:
		d.mode = ModeActive
		d.activateOnce.Do(func() { close(d.activated) })
	case d.replace:
		d.mode = ModeWaiting
	default:
		return "", ErrAlreadyRunning
	}
	d.logger.Info("daemon lock evaluated",
		logging.String("mode", string(d.mode)),
		logging.String("lock", d.cfg.LockPath()),
	)
	return d.mode, nil
}

// Mode reports the current lifecycle mode.
func (d *Daemon) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Activate is the skip-waiting hook. A waiting daemon acquires the lock as
// soon as the active worker releases it; an active daemon ignores the call.
func (d *Daemon) Activate() {
	if d.Mode() != ModeWaiting {
		d.logger.Debug("skip-waiting ignored; already active")
		return
	}
	go func() {
		ok, err := d.lock.TryLockContext(d.ctx, lockRetryDelay)
		if err != nil || !ok {
			if d.ctx.Err() == nil {
				d.logger.Warn("takeover failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "takeover_failed"),
					logging.String(logging.FieldErrorHint, "stop the active worker and retry imgworker upgrade"),
				)
			}
			return
		}
		d.mu.Lock()
		d.mode = ModeActive
		d.mu.Unlock()
		d.logger.Info("waiting worker activated", logging.String(logging.FieldEventType, "worker_activated"))
		d.activateOnce.Do(func() { close(d.activated) })
	}()
}

// Activated is closed once the daemon holds the lock.
func (d *Daemon) Activated() <-chan struct{} {
	return d.activated
}

// Start begins polling. The daemon must be active.
func (d *Daemon) Start(ctx context.Context) error {
	if d.Mode() != ModeActive {
		return errors.New("daemon is not active")
	}
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	if err := os.WriteFile(d.cfg.PIDPath(), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		d.logger.Warn("failed to write pid file",
			logging.String("path", d.cfg.PIDPath()),
			logging.Error(err),
			logging.String(logging.FieldEventType, "pid_write_failed"),
		)
	}
	d.mu.Lock()
	d.startedAt = time.Now().UTC()
	d.mu.Unlock()
	d.orch.Start(ctx)
	d.logger.Info("imgworker daemon started",
		logging.String("lock", d.cfg.LockPath()),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Shutdown asks the hosting process to exit. It is safe to call repeatedly.
func (d *Daemon) Shutdown() {
	d.doneOnce.Do(func() {
		d.logger.Info("shutdown requested", logging.String(logging.FieldEventType, "daemon_shutdown"))
		close(d.done)
	})
}

// Done is closed by Shutdown.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Close stops polling, waits for in-flight continuations and releases the lock.
func (d *Daemon) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.cancel()
		d.orch.Close()
		d.store.Close()
		if d.running.Load() {
			_ = os.Remove(d.cfg.PIDPath())
		}
		if d.lock.Locked() {
			if unlockErr := d.lock.Unlock(); unlockErr != nil {
				err = fmt.Errorf("release lock: %w", unlockErr)
			}
		}
		d.running.Store(false)
		d.logger.Info("imgworker daemon stopped")
	})
	return err
}

// Connect registers an observer.
func (d *Daemon) Connect() string {
	id := d.hub.Connect()
	d.logger.Debug("observer connected", logging.String("observer", id))
	return id
}

// Disconnect forgets an observer.
func (d *Daemon) Disconnect(id string) {
	d.hub.Disconnect(id)
	d.logger.Debug("observer disconnected", logging.String("observer", id))
}

// Send routes msg from observer. A waiting daemon only accepts skip-waiting.
func (d *Daemon) Send(ctx context.Context, observer string, msg command.Message) error {
	if !command.Known(msg.Command) {
		return services.Wrap(services.ErrValidation, "daemon", "send",
			fmt.Sprintf("unknown command %q", msg.Command), nil)
	}
	if d.Mode() == ModeWaiting && msg.Command != command.SkipWaiting {
		return services.Wrap(services.ErrValidation, "daemon", "send",
			"worker is waiting; only skip-waiting is accepted", nil)
	}
	d.router.Route(ctx, msg, observer)
	return nil
}

// Events long-polls the broadcast hub on behalf of observer.
func (d *Daemon) Events(ctx context.Context, observer string, since uint64, limit int, wait bool) ([]broadcast.Event, uint64, error) {
	return d.hub.Fetch(ctx, observer, since, limit, wait)
}
