package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"imgworker/internal/broadcast"
	"imgworker/internal/command"
	"imgworker/internal/engine"
	"imgworker/internal/logging"
	"imgworker/internal/orchestrator"
	"imgworker/internal/queue"
	"imgworker/internal/store"
	"imgworker/internal/upload"
)

type refreshFunc func(ctx context.Context) bool

func (f refreshFunc) Refresh(ctx context.Context) bool { return f(ctx) }

type notifier struct {
	mu          sync.Mutex
	unavailable []string
	stopped     []int
}

func (n *notifier) NotifyManifestUnavailable(_ context.Context, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unavailable = append(n.unavailable, url)
	return nil
}

func (n *notifier) NotifyWorkerStopped(_ context.Context, removed int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = append(n.stopped, removed)
	return nil
}

type fixture struct {
	store *store.Store
	hub   *broadcast.Hub
	orch  *orchestrator.Orchestrator
	notes *notifier
}

func newFixture(t *testing.T, refresh refreshFunc, opts orchestrator.Options) *fixture {
	t.Helper()
	return newFixtureWith(t, refresh, opts)
}

func newFixtureWith(t *testing.T, refresh refreshFunc, opts orchestrator.Options, extra ...store.Middleware) *fixture {
	t.Helper()
	middlewares := append([]store.Middleware{engine.Middleware(logging.NewNop())}, extra...)
	st := store.New(store.State{}, middlewares...)
	hub := broadcast.NewHub(64)
	notes := &notifier{}
	if opts.Floor == 0 {
		opts.Floor = time.Hour
	}
	if opts.Step == 0 {
		opts.Step = time.Hour
	}
	opts.Notifier = notes
	orch := orchestrator.New(st, refresh, hub, opts, logging.NewNop())
	orch.Start(context.Background())
	t.Cleanup(func() {
		orch.Close()
		st.Close()
	})
	return &fixture{store: st, hub: hub, orch: orch, notes: notes}
}

func commands(h *broadcast.Hub, observer string) []string {
	events, _, _ := h.Fetch(context.Background(), observer, 0, 0, false)
	out := make([]string, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Command)
	}
	return out
}

func count(list []string, want string) int {
	n := 0
	for _, v := range list {
		if v == want {
			n++
		}
	}
	return n
}

func TestCycleFailedRefreshStopsPolling(t *testing.T) {
	f := newFixture(t, func(context.Context) bool { return false }, orchestrator.Options{})
	f.store.Dispatch(store.SetSettings{Settings: store.Settings{ImageListURL: "http://manifest"}})
	f.orch.Scheduler().Backoff()

	f.orch.Cycle(context.Background(), "")

	if f.orch.Scheduler().Pending() {
		t.Fatal("expected no pending cycle after failed refresh")
	}
	if f.orch.Scheduler().Current() != time.Hour {
		t.Fatalf("expected interval reset, got %v", f.orch.Scheduler().Current())
	}
	if len(f.notes.unavailable) != 1 || f.notes.unavailable[0] != "http://manifest" {
		t.Fatalf("unexpected notifications %+v", f.notes.unavailable)
	}
}

func TestCycleEmptyQueueBacksOffAndBroadcasts(t *testing.T) {
	f := newFixture(t, func(context.Context) bool { return true }, orchestrator.Options{})

	f.orch.Cycle(context.Background(), "")

	if got := f.orch.Scheduler().Current(); got != 2*time.Hour {
		t.Fatalf("expected backoff to 2h, got %v", got)
	}
	if !f.orch.Scheduler().Pending() {
		t.Fatal("expected next cycle to be scheduled")
	}
	if count(commands(f.hub, ""), command.QueueUpdated) != 1 {
		t.Fatalf("expected one queue-updated broadcast, got %v", commands(f.hub, ""))
	}
}

func TestCycleWithWorkResetsIntervalAndStartsItem(t *testing.T) {
	var st *store.Store
	f := newFixture(t, func(context.Context) bool {
		st.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, queue.Payload{ID: "1", URLs: []string{"a.jpg"}})})
		return true
	}, orchestrator.Options{})
	st = f.store
	f.orch.Scheduler().Backoff()

	f.orch.Cycle(context.Background(), "")

	if f.orch.Scheduler().Current() != time.Hour {
		t.Fatalf("expected reset interval, got %v", f.orch.Scheduler().Current())
	}
	item, ok := f.store.State().Queue.ByID("Optimize/image/1")
	if !ok || item.State != queue.StateProcessing {
		t.Fatalf("expected item processing, got %+v", item)
	}
}

func TestCycleConfigHandshake(t *testing.T) {
	var st *store.Store
	var seen string
	f := newFixture(t, func(context.Context) bool {
		seen = st.State().Settings.ImageListURL
		return true
	}, orchestrator.Options{ConfigTimeout: 2 * time.Second})
	st = f.store

	router := command.NewRouter(logging.NewNop())
	router.AddHandler(orchestrator.ConfigHandler(st, logging.NewNop()))

	observer := f.hub.Connect()
	go func() {
		events, _, err := f.hub.Fetch(context.Background(), observer, 0, 0, true)
		if err != nil || len(events) == 0 || events[0].Command != command.GetConfig {
			return
		}
		router.Route(context.Background(), command.Message{
			Command: command.SetConfig,
			Config:  &store.Settings{ImageListURL: "http://from-observer"},
		}, observer)
	}()

	f.orch.Cycle(context.Background(), observer)

	if seen != "http://from-observer" {
		t.Fatalf("refresh saw %q, expected handshake settings", seen)
	}
}

func TestCycleConfigHandshakeTimesOut(t *testing.T) {
	refreshed := false
	f := newFixture(t, func(context.Context) bool {
		refreshed = true
		return true
	}, orchestrator.Options{ConfigTimeout: 20 * time.Millisecond})
	observer := f.hub.Connect()

	start := time.Now()
	f.orch.Cycle(context.Background(), observer)

	if !refreshed {
		t.Fatal("cycle should continue after handshake timeout")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("cycle returned before the handshake timeout")
	}
	if count(commands(f.hub, observer), command.GetConfig) != 1 {
		t.Fatalf("expected get-config to the observer, got %v", commands(f.hub, observer))
	}
}

func TestSnapshotBroadcastOnQueueChange(t *testing.T) {
	f := newFixture(t, nil, orchestrator.Options{})
	f.store.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, queue.Payload{ID: "1"})})
	f.store.Dispatch(store.SetSettings{})

	events, _, _ := f.hub.Fetch(context.Background(), "", 0, 0, false)
	if len(events) != 1 || events[0].Command != command.QueueUpdated {
		t.Fatalf("expected one queue-updated, got %+v", events)
	}
	if len(events[0].Queue) != 1 || events[0].Queue[0].Payload.ID != "1" {
		t.Fatalf("unexpected snapshot %+v", events[0].Queue)
	}
}

func TestRemoveItemRefusesProcessing(t *testing.T) {
	f := newFixture(t, nil, orchestrator.Options{})
	f.store.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, queue.Payload{ID: "1"})})
	f.store.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, queue.Payload{ID: "2"})})
	f.store.Dispatch(queue.Advance{Queue: queue.Optimize})

	if f.orch.RemoveItem("1") {
		t.Fatal("processing item must not be removed")
	}
	if !f.orch.RemoveItem("2") {
		t.Fatal("idle item should be removed")
	}
	if f.orch.RemoveItem("missing") {
		t.Fatal("unknown item reported removed")
	}
	if len(f.store.State().Queue) != 1 {
		t.Fatalf("unexpected queue %+v", f.store.State().Queue)
	}
}

func TestStopWorkingWaitsForInFlight(t *testing.T) {
	f := newFixture(t, nil, orchestrator.Options{})
	for _, id := range []string{"1", "2", "3"} {
		f.store.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, queue.Payload{ID: id})})
	}
	f.store.Dispatch(queue.Add{Item: queue.NewItem(queue.Upload, queue.Payload{ID: "4"})})
	f.store.Dispatch(queue.Advance{Queue: queue.Optimize})

	f.orch.StopWorking(context.Background())

	list := f.store.State().Queue
	if len(list) != 1 || list[0].ID != "Optimize/image/1" {
		t.Fatalf("expected only the in-flight item to remain, got %+v", list)
	}
	if !f.store.State().Halted {
		t.Fatal("expected worker halted")
	}
	if count(commands(f.hub, ""), command.Stopped) != 0 {
		t.Fatal("stopped sent while an item is processing")
	}

	f.store.Dispatch(queue.MarkProcessed{ID: "Optimize/image/1"})
	f.store.Dispatch(queue.Remove{ID: "Optimize/image/1"})

	if got := count(commands(f.hub, ""), command.Stopped); got != 1 {
		t.Fatalf("expected exactly one stopped, got %d", got)
	}
	if len(f.notes.stopped) != 1 || f.notes.stopped[0] != 3 {
		t.Fatalf("unexpected stop notifications %+v", f.notes.stopped)
	}
}

func TestStopWorkingIdleAnnouncesImmediately(t *testing.T) {
	f := newFixture(t, nil, orchestrator.Options{})
	f.orch.StopWorking(context.Background())
	if got := count(commands(f.hub, ""), command.Stopped); got != 1 {
		t.Fatalf("expected stopped at once, got %d", got)
	}
}

func TestGetUpdateResumesAndCycles(t *testing.T) {
	cycled := make(chan struct{}, 1)
	f := newFixture(t, func(context.Context) bool {
		select {
		case cycled <- struct{}{}:
		default:
		}
		return true
	}, orchestrator.Options{})
	f.store.Dispatch(store.Halt{})

	f.orch.Handler()(context.Background(), command.GetUpdate, command.Message{Command: command.GetUpdate}, "")

	select {
	case <-cycled:
	case <-time.After(2 * time.Second):
		t.Fatal("get-update did not run a cycle")
	}
	if f.store.State().Halted {
		t.Fatal("get-update should clear the halt flag")
	}
}

func TestGetUpdateRestartsUploadsHandedOffWhileStopped(t *testing.T) {
	f := newFixtureWith(t, func(context.Context) bool { return true }, orchestrator.Options{}, upload.Handoff())
	f.store.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, queue.Payload{ID: "1"})})
	f.store.Dispatch(queue.Advance{Queue: queue.Optimize})

	f.orch.StopWorking(context.Background())
	f.store.Dispatch(queue.MarkProcessed{ID: "Optimize/image/1"})

	item, ok := f.store.State().Queue.ByID("Upload/image/1")
	if !ok || item.State != queue.StateIdle {
		t.Fatalf("expected idle upload item while halted, got %+v", f.store.State().Queue)
	}
	if got := count(commands(f.hub, ""), command.Stopped); got != 1 {
		t.Fatalf("expected stopped once the optimize item finished, got %d", got)
	}

	f.orch.Handler()(context.Background(), command.GetUpdate, command.Message{Command: command.GetUpdate}, "")

	item, ok = f.store.State().Queue.ByID("Upload/image/1")
	if !ok || item.State != queue.StateProcessing {
		t.Fatalf("expected upload item processing after get-update, got %+v", f.store.State().Queue)
	}
}

func TestCycleAdvancesUploadQueue(t *testing.T) {
	f := newFixture(t, func(context.Context) bool { return true }, orchestrator.Options{})
	f.store.Dispatch(queue.Add{Item: queue.NewItem(queue.Upload, queue.Payload{ID: "9"})})

	f.orch.Cycle(context.Background(), "")

	item, ok := f.store.State().Queue.ByID("Upload/image/9")
	if !ok || item.State != queue.StateProcessing {
		t.Fatalf("expected upload item processing after cycle, got %+v", item)
	}
}

func TestSkipWaitingInvokesActivation(t *testing.T) {
	activated := false
	f := newFixture(t, nil, orchestrator.Options{Activate: func() { activated = true }})
	f.orch.Handler()(context.Background(), command.SkipWaiting, command.Message{Command: command.SkipWaiting}, "")
	if !activated {
		t.Fatal("expected activation hook")
	}
}
