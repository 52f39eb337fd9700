package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"imgworker/internal/logging"
	"imgworker/internal/queue"
	"imgworker/internal/services"
	"imgworker/internal/store"
)

// Store is the state access the reconciler needs.
type Store interface {
	State() store.State
	Transact(fn func(api store.API))
}

// Summary counts the changes made by one Apply.
type Summary struct {
	Added    int
	Updated  int
	Requeued int
	Removed  int
	Evicted  int
	// Deferred counts entries left for a later refresh because the worker
	// is halted. It is not a change.
	Deferred int
}

// Changed reports whether any item was touched.
func (s Summary) Changed() bool {
	return s.Added+s.Updated+s.Requeued+s.Removed+s.Evicted > 0
}

// Reconciler applies the remote manifest to the queue.
type Reconciler struct {
	store  Store
	client *http.Client
	logger *slog.Logger
}

// New constructs a reconciler. A nil client uses http.DefaultClient.
func New(st Store, client *http.Client, logger *slog.Logger) *Reconciler {
	if client == nil {
		client = http.DefaultClient
	}
	return &Reconciler{
		store:  st,
		client: client,
		logger: logging.NewComponentLogger(logger, "reconciler"),
	}
}

// Refresh fetches the manifest and applies it. It returns false when the
// manifest could not be fetched or parsed; the queue is left unchanged.
func (r *Reconciler) Refresh(ctx context.Context) bool {
	url := strings.TrimSpace(r.store.State().Settings.ImageListURL)
	entries, err := r.fetch(ctx, url)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "manifest refresh failed", "manifest_fetch_failed",
			logging.String("url", url),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check image_list_url and the manifest endpoint"),
			logging.String(logging.FieldImpact, "polling stops until the next get-update"),
		)
		return false
	}
	summary := r.Apply(entries)
	attrs := logging.Args(
		logging.Int("entries", len(entries)),
		logging.Int("added", summary.Added),
		logging.Int("updated", summary.Updated),
		logging.Int("requeued", summary.Requeued),
		logging.Int("removed", summary.Removed),
		logging.Int("evicted", summary.Evicted),
		logging.Int("deferred", summary.Deferred),
	)
	if summary.Changed() {
		logging.WithContext(ctx, r.logger).Info("manifest reconciled", attrs...)
	} else {
		logging.WithContext(ctx, r.logger).Debug("manifest unchanged", attrs...)
	}
	return true
}

func (r *Reconciler) fetch(ctx context.Context, url string) ([]Entry, error) {
	if url == "" {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "fetch", "image_list_url is not set", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "manifest", "build request", "invalid image_list_url", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "manifest", "fetch", "request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "manifest", "read", "read body", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, services.Wrap(services.ErrExternalTool, "manifest", "fetch", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, services.Wrap(services.ErrValidation, "manifest", "decode", "manifest is not a JSON array", nil)
	}
	var entries []Entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, services.Wrap(services.ErrValidation, "manifest", "decode", "invalid manifest", err)
	}
	return entries, nil
}

// Apply reconciles entries against the queue in one store transaction.
func (r *Reconciler) Apply(entries []Entry) Summary {
	var summary Summary
	r.store.Transact(func(api store.API) {
		present := make(map[string]struct{}, len(entries))
		for _, entry := range entries {
			present[entry.ID] = struct{}{}
			r.applyEntry(api, entry, &summary)
		}
		r.removeAbsent(api, present, &summary)
		r.enforceRetention(api, &summary)
	})
	return summary
}

func (r *Reconciler) applyEntry(api store.API, entry Entry, summary *Summary) {
	state := api.State()
	existing, ok := state.Queue.ByPayloadID(entry.ID)
	switch {
	case !ok && state.Halted:
		summary.Deferred++
	case !ok:
		api.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, queue.Payload{
			ID:     entry.ID,
			URLs:   entry.URLs,
			Fields: entry.Fields,
		})})
		summary.Added++
	case existing.IsProcessing(), existing.Payload.HasError():
	case !URLsChanged(existing.Payload.URLs, entry.URLs):
	case existing.Queue == queue.Optimize:
		urls := append([]string(nil), entry.URLs...)
		api.Dispatch(queue.Update{ID: existing.ID, Patch: queue.Patch{URLs: &urls, Fields: entry.Fields}})
		summary.Updated++
	case state.Halted:
		summary.Deferred++
	default:
		// Upload items carry output for the old URLs; optimize again.
		payload := queue.Patch{Fields: entry.Fields}.Apply(existing.Payload)
		payload.URLs = append([]string(nil), entry.URLs...)
		payload.Datas = nil
		api.Dispatch(queue.Remove{ID: existing.ID})
		api.Dispatch(queue.Add{Item: queue.NewItem(queue.Optimize, payload)})
		summary.Requeued++
		r.logger.Debug("item requeued for optimization",
			logging.String(logging.FieldItemID, existing.ID),
			logging.Int("urls", len(payload.URLs)),
		)
	}
}

func (r *Reconciler) removeAbsent(api store.API, present map[string]struct{}, summary *Summary) {
	for _, item := range api.State().Queue.ByQueue(queue.Optimize) {
		if _, ok := present[item.Payload.ID]; ok || item.IsProcessing() {
			continue
		}
		api.Dispatch(queue.Remove{ID: item.ID})
		summary.Removed++
	}
}

func (r *Reconciler) enforceRetention(api store.API, summary *Summary) {
	state := api.State()
	var kept []queue.Item
	for _, item := range state.Queue.Processed(queue.Upload) {
		if !item.Payload.HasError() {
			kept = append(kept, item)
		}
	}
	excess := len(kept) - state.Settings.Retention()
	for i := 0; i < excess; i++ {
		api.Dispatch(queue.Remove{ID: kept[i].ID})
		summary.Evicted++
	}
}
