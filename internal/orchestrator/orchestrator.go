package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"imgworker/internal/broadcast"
	"imgworker/internal/command"
	"imgworker/internal/logging"
	"imgworker/internal/queue"
	"imgworker/internal/services"
	"imgworker/internal/store"
)

// DefaultConfigTimeout bounds the get-config/set-config handshake.
const DefaultConfigTimeout = 5 * time.Second

// Store is the state container surface the orchestrator needs.
type Store interface {
	State() store.State
	Dispatch(store.Action)
	Subscribe(store.Listener) func()
	Transact(func(store.API))
}

// Refresher reconciles the queue against the remote manifest.
type Refresher interface {
	Refresh(ctx context.Context) bool
}

// Hub delivers events to observers.
type Hub interface {
	Publish(broadcast.Event) broadcast.Event
	SendTo(target string, evt broadcast.Event) bool
	Connected(id string) bool
}

// Notifier receives operator-facing alerts.
type Notifier interface {
	NotifyManifestUnavailable(ctx context.Context, url string) error
	NotifyWorkerStopped(ctx context.Context, removed int) error
}

// Options tune the orchestrator.
type Options struct {
	Floor         time.Duration
	Step          time.Duration
	ConfigTimeout time.Duration
	// Activate runs on skip-waiting. Nil means the worker is already active.
	Activate func()
	Notifier Notifier
}

// Orchestrator runs poll cycles and answers lifecycle commands.
type Orchestrator struct {
	store     Store
	refresher Refresher
	hub       Hub
	scheduler *Scheduler
	opts      Options
	logger    *slog.Logger

	cycleMu sync.Mutex

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()
	wg     sync.WaitGroup
}

// New constructs an orchestrator. Call Start before routing commands.
func New(st Store, refresher Refresher, hub Hub, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.ConfigTimeout <= 0 {
		opts.ConfigTimeout = DefaultConfigTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:     st,
		refresher: refresher,
		hub:       hub,
		scheduler: NewScheduler(opts.Floor, opts.Step),
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "orchestrator"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Scheduler exposes the poll timer.
func (o *Orchestrator) Scheduler() *Scheduler { return o.scheduler }

// Start installs the snapshot broadcaster. Cycles kicked afterwards run
// under ctx.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.unsub != nil {
		return
	}
	o.cancel()
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.unsub = o.watchSnapshots()
}

// Close stops the timer, removes the snapshot broadcaster and waits for
// running cycles.
func (o *Orchestrator) Close() {
	o.scheduler.Stop()
	o.mu.Lock()
	o.cancel()
	if o.unsub != nil {
		o.unsub()
		o.unsub = nil
	}
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Orchestrator) runContext() context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ctx
}

// Kick starts a cycle on a background goroutine.
func (o *Orchestrator) Kick(source string) {
	ctx := o.runContext()
	if ctx.Err() != nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.Cycle(ctx, source)
	}()
}

// Cycle runs one poll: config handshake, manifest refresh, queue advance,
// backoff decision and rescheduling. Cycles never overlap.
func (o *Orchestrator) Cycle(ctx context.Context, source string) {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()
	if ctx.Err() != nil {
		return
	}

	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, o.logger)

	o.handshake(ctx, logger, source)

	if !o.refresher.Refresh(ctx) {
		o.scheduler.Stop()
		o.scheduler.Reset()
		if o.opts.Notifier != nil {
			url := o.store.State().Settings.ImageListURL
			if err := o.opts.Notifier.NotifyManifestUnavailable(ctx, url); err != nil {
				logger.Debug("manifest notification failed", logging.Error(err))
			}
		}
		logger.Info("polling stopped", logging.String(logging.FieldEventType, "poll_stopped"))
		return
	}

	o.advanceAll()

	state := o.store.State()
	views := queue.Snapshot(state.Queue)
	completed := queue.AllProcessed(views)
	if completed {
		o.scheduler.Backoff()
		o.hub.Publish(broadcast.Event{Command: command.QueueUpdated, Queue: views})
	} else {
		o.scheduler.Reset()
	}

	if state.Halted {
		logger.Info("worker halted; not rescheduling")
		return
	}
	next := o.scheduler.Current()
	o.scheduler.Schedule(func() { o.Kick(source) })
	logger.Debug("poll cycle complete",
		logging.Int("items", len(views)),
		logging.Bool("completed", completed),
		logging.Duration("next", next),
	)
}

// advanceAll pumps both queues. Items handed off while halted sit idle on
// the upload queue until this runs.
func (o *Orchestrator) advanceAll() {
	o.store.Dispatch(queue.Advance{Queue: queue.Optimize})
	o.store.Dispatch(queue.Advance{Queue: queue.Upload})
}

// handshake asks source for its config and waits for the settings revision
// to move. It reports whether new settings arrived.
func (o *Orchestrator) handshake(ctx context.Context, logger *slog.Logger, source string) bool {
	if source == "" || !o.hub.Connected(source) {
		return false
	}

	before := o.store.State().SettingsRevision
	changed := make(chan struct{})
	var once sync.Once
	signal := func() { once.Do(func() { close(changed) }) }
	unsub := o.store.Subscribe(func(s store.State, _ store.Action) {
		if s.SettingsRevision != before {
			signal()
		}
	})
	defer unsub()
	if o.store.State().SettingsRevision != before {
		signal()
	}

	if !o.hub.SendTo(source, broadcast.Event{Command: command.GetConfig}) {
		return false
	}

	timer := time.NewTimer(o.opts.ConfigTimeout)
	defer timer.Stop()
	select {
	case <-changed:
		return true
	case <-timer.C:
		logging.WarnWithContext(logger, "config handshake timed out", "config_timeout",
			logging.String("observer", source),
			logging.Duration("timeout", o.opts.ConfigTimeout),
			logging.String(logging.FieldErrorHint, "the observer did not answer get-config with set-config"),
			logging.String(logging.FieldImpact, "cycle continues with the current settings"),
		)
		return false
	case <-ctx.Done():
		return false
	}
}

// watchSnapshots broadcasts queue-updated whenever the queue revision moves.
func (o *Orchestrator) watchSnapshots() func() {
	last := o.store.State().Revision
	return o.store.Subscribe(func(s store.State, _ store.Action) {
		if s.Revision == last {
			return
		}
		last = s.Revision
		o.hub.Publish(broadcast.Event{Command: command.QueueUpdated, Queue: queue.Snapshot(s.Queue)})
	})
}
