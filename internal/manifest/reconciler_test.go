package manifest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"imgworker/internal/logging"
	"imgworker/internal/manifest"
	"imgworker/internal/queue"
	"imgworker/internal/store"
)

func newStore() *store.Store {
	return store.New(store.State{})
}

func newReconciler(s *store.Store) *manifest.Reconciler {
	return manifest.New(s, nil, logging.NewNop())
}

func entries(t *testing.T, raw string) []manifest.Entry {
	t.Helper()
	var out []manifest.Entry
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	return out
}

func TestURLsChanged(t *testing.T) {
	cases := []struct {
		a, b []string
		want bool
	}{
		{[]string{"a", "b"}, []string{"b", "a"}, false},
		{[]string{"a"}, []string{"a", "b"}, true},
		{[]string{"a", "b"}, []string{"a", "c"}, true},
		{nil, nil, false},
		{[]string{"a", "a"}, []string{"a", "b"}, true},
	}
	for _, tc := range cases {
		if got := manifest.URLsChanged(tc.a, tc.b); got != tc.want {
			t.Fatalf("URLsChanged(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
		if manifest.URLsChanged(tc.a, tc.b) != manifest.URLsChanged(tc.b, tc.a) {
			t.Fatalf("URLsChanged not symmetric for %v %v", tc.a, tc.b)
		}
	}
}

func TestEntryDecodesNumericIDAndFields(t *testing.T) {
	got := entries(t, `[{"id": 12, "urls": ["a.jpg"], "title": "cat", "rank": 3, "meta": {"x": 1}}]`)
	if len(got) != 1 || got[0].ID != "12" {
		t.Fatalf("unexpected entries %+v", got)
	}
	if got[0].Fields["title"] != "cat" || got[0].Fields["rank"] != "3" {
		t.Fatalf("unexpected fields %+v", got[0].Fields)
	}
	if _, ok := got[0].Fields["meta"]; ok {
		t.Fatal("object fields should be skipped")
	}
}

func TestTwoManifestScenario(t *testing.T) {
	s := newStore()
	r := newReconciler(s)

	summary := r.Apply(entries(t, `[{"id":"1","urls":["a.jpg","b.jpg"]},{"id":"2","urls":["c.png"]}]`))
	if summary.Added != 2 {
		t.Fatalf("expected 2 added, got %+v", summary)
	}
	idle := s.State().Queue.ToBeProcessed(queue.Optimize)
	if len(idle) != 2 {
		t.Fatalf("expected 2 idle items, got %d", len(idle))
	}

	summary = r.Apply(entries(t, `[{"id":"1","urls":["a.jpg"]}]`))
	if summary.Updated != 1 || summary.Removed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	items := s.State().Queue.ByQueue(queue.Optimize)
	if len(items) != 1 || items[0].Payload.ID != "1" || len(items[0].Payload.URLs) != 1 {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestProcessingItemUntouched(t *testing.T) {
	s := newStore()
	r := newReconciler(s)
	r.Apply(entries(t, `[{"id":"1","urls":["a.jpg","b.jpg"]},{"id":"2","urls":["c.png"]}]`))
	s.Dispatch(queue.Start{ID: queue.ItemID(queue.Optimize, "1")})

	summary := r.Apply(entries(t, `[{"id":"2","urls":["d.png"]}]`))
	if summary.Removed != 0 || summary.Updated != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	item, ok := s.State().Queue.ByID(queue.ItemID(queue.Optimize, "1"))
	if !ok || len(item.Payload.URLs) != 2 || !item.IsProcessing() {
		t.Fatalf("processing item changed: %+v", item)
	}

	summary = r.Apply(entries(t, `[{"id":"1","urls":["z.jpg"]},{"id":"2","urls":["d.png"]}]`))
	if summary.Changed() {
		t.Fatalf("processing item should not be patched: %+v", summary)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	s := newStore()
	r := newReconciler(s)
	list := entries(t, `[{"id":"1","urls":["a.jpg"]},{"id":"2","urls":["b.png"]}]`)
	r.Apply(list)
	revision := s.State().Revision

	if summary := r.Apply(list); summary.Changed() {
		t.Fatalf("second pass changed state: %+v", summary)
	}
	if s.State().Revision != revision {
		t.Fatal("revision moved on identical manifest")
	}
}

func TestErroredItemLeftAlone(t *testing.T) {
	s := newStore()
	failed := queue.NewItem(queue.Upload, queue.Payload{ID: "1", URLs: []string{"a.jpg"}, Error: "Image upload failed"})
	s.Dispatch(queue.Add{Item: failed})
	s.Dispatch(queue.MarkProcessed{ID: failed.ID})

	summary := newReconciler(s).Apply(entries(t, `[{"id":"1","urls":["b.jpg"]}]`))
	if summary.Changed() {
		t.Fatalf("errored item should be ignored: %+v", summary)
	}
}

func TestUploadItemRequeuedOnURLChange(t *testing.T) {
	s := newStore()
	done := queue.NewItem(queue.Upload, queue.Payload{ID: "1", URLs: []string{"a.jpg"}})
	s.Dispatch(queue.Add{Item: done})
	s.Dispatch(queue.MarkProcessed{ID: done.ID})

	summary := newReconciler(s).Apply(entries(t, `[{"id":"1","urls":["b.jpg"]}]`))
	if summary.Requeued != 1 {
		t.Fatalf("expected requeue, got %+v", summary)
	}
	list := s.State().Queue
	if _, ok := list.ByID(done.ID); ok {
		t.Fatal("upload item should be removed")
	}
	item, ok := list.ByID(queue.ItemID(queue.Optimize, "1"))
	if !ok || item.State != queue.StateIdle || item.Payload.URLs[0] != "b.jpg" {
		t.Fatalf("unexpected optimize item %+v", item)
	}
}

func TestHaltedWorkerDefersNewAndRequeuedItems(t *testing.T) {
	s := newStore()
	done := queue.NewItem(queue.Upload, queue.Payload{ID: "1", URLs: []string{"a.jpg"}})
	s.Dispatch(queue.Add{Item: done})
	s.Dispatch(queue.MarkProcessed{ID: done.ID})
	s.Dispatch(store.Halt{})

	summary := newReconciler(s).Apply(entries(t, `[{"id":"1","urls":["b.jpg"]},{"id":"2","urls":["c.jpg"]}]`))

	if summary.Added != 0 || summary.Requeued != 0 || summary.Deferred != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Changed() {
		t.Fatal("deferred entries reported as a change")
	}
	list := s.State().Queue
	if len(list) != 1 || list[0].ID != done.ID {
		t.Fatalf("expected queue untouched while halted, got %+v", list)
	}

	s.Dispatch(store.Resume{})
	summary = newReconciler(s).Apply(entries(t, `[{"id":"1","urls":["b.jpg"]},{"id":"2","urls":["c.jpg"]}]`))
	if summary.Added != 1 || summary.Requeued != 1 {
		t.Fatalf("expected entries applied after resume, got %+v", summary)
	}
}

func TestRetentionEvictsOldestProcessed(t *testing.T) {
	s := newStore()
	s.Dispatch(store.SetSettings{Settings: store.Settings{ProcessedRetention: 2}})
	raw := "["
	for i := 0; i < 4; i++ {
		item := queue.NewItem(queue.Upload, queue.Payload{ID: fmt.Sprint(i), URLs: []string{"a.jpg"}})
		s.Dispatch(queue.Add{Item: item})
		s.Dispatch(queue.MarkProcessed{ID: item.ID})
		if i > 0 {
			raw += ","
		}
		raw += fmt.Sprintf(`{"id":"%d","urls":["a.jpg"]}`, i)
	}
	raw += "]"

	summary := newReconciler(s).Apply(entries(t, raw))
	if summary.Evicted != 2 {
		t.Fatalf("expected 2 evictions, got %+v", summary)
	}
	remaining := s.State().Queue.ByQueue(queue.Upload)
	if len(remaining) != 2 || remaining[0].Payload.ID != "2" || remaining[1].Payload.ID != "3" {
		t.Fatalf("expected newest items kept, got %+v", remaining)
	}
}

func TestRefreshFetchesManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"1","urls":["a.jpg"]}]`))
	}))
	defer srv.Close()

	s := newStore()
	s.Dispatch(store.SetSettings{Settings: store.Settings{ImageListURL: srv.URL}})
	if !manifest.New(s, srv.Client(), logging.NewNop()).Refresh(context.Background()) {
		t.Fatal("expected refresh to succeed")
	}
	if len(s.State().Queue) != 1 {
		t.Fatalf("expected one item, got %+v", s.State().Queue)
	}
}

func TestRefreshFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		},
		"object": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":"1"}`))
		},
		"null": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`null`))
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[{"id":`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			s := newStore()
			s.Dispatch(store.SetSettings{Settings: store.Settings{ImageListURL: srv.URL}})
			revision := s.State().Revision
			if manifest.New(s, srv.Client(), logging.NewNop()).Refresh(context.Background()) {
				t.Fatal("expected refresh failure")
			}
			if s.State().Revision != revision {
				t.Fatal("failed refresh changed state")
			}
		})
	}
}

func TestRefreshWithoutURL(t *testing.T) {
	if newReconciler(newStore()).Refresh(context.Background()) {
		t.Fatal("expected refresh failure without url")
	}
}
