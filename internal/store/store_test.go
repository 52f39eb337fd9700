package store_test

import (
	"context"
	"sync"
	"testing"

	"imgworker/internal/queue"
	"imgworker/internal/store"
)

type recorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *recorder) add(entry string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

func tracing(name string, rec *recorder) store.Middleware {
	return func(api store.API, action store.Action, next store.Dispatch) {
		rec.add(name + ":" + action.ActionType())
		next(action)
		if !api.State().Halted {
			rec.add(name + ":not-applied")
		}
	}
}

func TestMiddlewaresFireInRegistrationOrder(t *testing.T) {
	rec := &recorder{}
	s := store.New(store.State{}, tracing("a", rec), tracing("b", rec))
	s.Dispatch(store.Halt{})

	got := rec.list()
	if len(got) != 2 || got[0] != "a:worker/halt" || got[1] != "b:worker/halt" {
		t.Fatalf("unexpected order %v", got)
	}
	if !s.State().Halted {
		t.Fatal("expected halted state")
	}
}

func TestNestedDispatchIsDepthFirst(t *testing.T) {
	rec := &recorder{}
	chain := func(api store.API, action store.Action, next store.Dispatch) {
		next(action)
		rec.add(action.ActionType())
		if _, ok := action.(store.Halt); ok {
			api.Dispatch(store.Resume{})
			rec.add("after-resume")
		}
	}
	s := store.New(store.State{}, chain)
	s.Dispatch(store.Halt{})

	got := rec.list()
	want := []string{"worker/halt", "worker/resume", "after-resume"}
	if len(got) != len(want) {
		t.Fatalf("unexpected trace %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected trace %v", got)
		}
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	s := store.New(store.State{})
	var revisions []uint64
	unsubscribe := s.Subscribe(func(state store.State, _ store.Action) {
		revisions = append(revisions, state.Revision)
	})

	s.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, queue.Payload{ID: "1"})})
	unsubscribe()
	unsubscribe()
	s.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, queue.Payload{ID: "2"})})

	if len(revisions) != 1 || revisions[0] != 1 {
		t.Fatalf("unexpected revisions %v", revisions)
	}
	if s.State().Revision != 2 {
		t.Fatalf("expected revision 2, got %d", s.State().Revision)
	}
}

func TestSettingsRevisionBumps(t *testing.T) {
	s := store.New(store.State{})
	s.Dispatch(store.SetSettings{Settings: store.Settings{ImageListURL: "http://x"}})
	state := s.State()
	if state.SettingsRevision != 1 || state.Settings.ImageListURL != "http://x" {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.Settings.Retention() != store.DefaultProcessedRetention {
		t.Fatalf("unexpected retention %d", state.Settings.Retention())
	}
}

func TestGoContinuationDispatches(t *testing.T) {
	item := queue.NewItem(queue.Optimize, queue.Payload{ID: "1"})
	async := func(api store.API, action store.Action, next store.Dispatch) {
		next(action)
		if add, ok := action.(queue.Add); ok {
			api.Go(func(_ context.Context, dispatch store.Dispatch) {
				dispatch(queue.MarkProcessed{ID: add.Item.ID})
			})
		}
	}
	s := store.New(store.State{}, async)
	s.Dispatch(queue.Add{Item: item})
	s.Wait()

	got, ok := s.State().Queue.ByID(item.ID)
	if !ok || got.State != queue.StateProcessed {
		t.Fatalf("expected processed item, got %+v", got)
	}
}

func TestSnapshotsAreImmutable(t *testing.T) {
	s := store.New(store.State{})
	s.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, queue.Payload{ID: "1"})})
	before := s.State()
	s.Dispatch(queue.Start{ID: queue.ItemID(queue.Optimize, "1")})

	if before.Queue[0].State != queue.StateIdle {
		t.Fatal("earlier snapshot was mutated")
	}
}

func TestTransactDispatchesAtomically(t *testing.T) {
	s := store.New(store.State{})
	s.Transact(func(api store.API) {
		api.Dispatch(queue.Add{Item: queue.NewItem(queue.Upload, queue.Payload{ID: "1"})})
		if len(api.State().Queue) != 1 {
			t.Fatal("transaction dispatch not applied")
		}
	})
	if s.State().Revision != 1 {
		t.Fatalf("unexpected revision %d", s.State().Revision)
	}
}

func TestTransactNotifiesOnceWithFinalState(t *testing.T) {
	s := store.New(store.State{})
	var calls []store.Action
	var seen []uint64
	s.Subscribe(func(state store.State, action store.Action) {
		calls = append(calls, action)
		seen = append(seen, state.Revision)
	})

	s.Transact(func(api store.API) {
		for _, id := range []string{"1", "2", "3"} {
			api.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, queue.Payload{ID: id})})
		}
		if len(calls) != 0 {
			t.Fatal("listener ran inside the transaction")
		}
	})

	if len(calls) != 1 {
		t.Fatalf("expected one notification, got %d", len(calls))
	}
	batch, ok := calls[0].(store.Batch)
	if !ok || len(batch.Actions) != 3 {
		t.Fatalf("expected a batch of three actions, got %+v", calls[0])
	}
	if seen[0] != 3 {
		t.Fatalf("listener saw revision %d, expected the final 3", seen[0])
	}

	s.Transact(func(store.API) {})
	if len(calls) != 1 {
		t.Fatal("empty transaction notified listeners")
	}
}
