package upload

import (
	"context"
	"log/slog"
	"time"

	"imgworker/internal/archive"
	"imgworker/internal/logging"
	"imgworker/internal/notifications"
	"imgworker/internal/queue"
	"imgworker/internal/services"
	"imgworker/internal/store"
)

// Messages patched onto failed upload items.
const (
	MessageUploadFailed = "Image upload failed"
	// MessageCompressionFailed is what observers have always seen for a
	// failed upload without a server error code.
	MessageCompressionFailed = "Image compression failed"
)

// Handoff moves every processed optimize item into the upload queue and
// advances it.
func Handoff() store.Middleware {
	return func(api store.API, action store.Action, next store.Dispatch) {
		next(action)
		done, ok := action.(queue.MarkProcessed)
		if !ok {
			return
		}
		item, ok := api.State().Queue.ByID(done.ID)
		if !ok || item.Queue != queue.Optimize {
			return
		}
		api.Dispatch(queue.Remove{ID: item.ID})
		api.Dispatch(queue.Add{Item: queue.NewItem(queue.Upload, item.Payload)})
		api.Dispatch(queue.Advance{Queue: queue.Upload})
	}
}

// Uploader is the upload stage: optional archive, chunked transfer, and
// failure notification.
type Uploader interface {
	Upload(ctx context.Context, target string, maxFiles int, payload queue.Payload) Response
}

// Pipeline wires an Uploader into the store.
type Pipeline struct {
	uploader Uploader
	archive  archive.Saver
	notifier notifications.Service
	logger   *slog.Logger
}

// NewPipeline constructs the upload stage. archive and notifier may be nil.
func NewPipeline(uploader Uploader, saver archive.Saver, notifier notifications.Service, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		uploader: uploader,
		archive:  saver,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "upload"),
	}
}

// Middleware starts an upload continuation for items that become ready on
// the upload queue.
func (p *Pipeline) Middleware() store.Middleware {
	return func(api store.API, action store.Action, next store.Dispatch) {
		next(action)
		ready, ok := action.(queue.ItemReady)
		if !ok || ready.Item.Queue != queue.Upload {
			return
		}
		item := ready.Item
		settings := api.State().Settings
		api.Go(func(ctx context.Context, dispatch store.Dispatch) {
			ctx = services.WithItemID(services.WithQueue(ctx, string(item.Queue)), item.ID)
			p.run(ctx, dispatch, item, settings)
		})
	}
}

func (p *Pipeline) run(ctx context.Context, dispatch store.Dispatch, item queue.Item, settings store.Settings) {
	logger := logging.WithContext(ctx, p.logger)
	started := time.Now()

	if p.archive != nil && !item.Payload.HasError() {
		stored := archive.Variants(ctx, p.archive, item.Payload, p.logger)
		logger.Debug("variants archived", logging.Int("objects", len(stored)))
	}

	resp := p.uploader.Upload(ctx, settings.ImageUploadURL, settings.MaxFileUploads, item.Payload)

	dispatch(queue.MarkProcessed{ID: item.ID})
	if !resp.Success {
		dispatch(queue.Update{ID: item.ID, Patch: failurePatch(resp)})
		logging.WarnWithContext(logger, "upload failed", "upload_failed",
			logging.String("code", resp.Error),
			logging.String(logging.FieldImpact, "item kept with error until its urls change"),
		)
		if p.notifier != nil {
			if err := p.notifier.NotifyUploadFailed(ctx, item.Payload.ID, resp.Error); err != nil {
				logger.Debug("upload failure notification failed", logging.Error(err))
			}
		}
	} else {
		logger.Info("item uploaded",
			logging.Int("urls", len(item.Payload.URLs)),
			logging.Bool("had_error", item.Payload.HasError()),
			logging.Duration("elapsed", time.Since(started)),
		)
	}
	empty := map[string][]queue.Variant{}
	dispatch(queue.Update{ID: item.ID, Patch: queue.Patch{Datas: &empty}})
}

func failurePatch(resp Response) queue.Patch {
	if resp.Error == "" {
		msg := MessageCompressionFailed
		return queue.Patch{Error: &msg}
	}
	msg := MessageUploadFailed
	errs := []string{resp.Error}
	return queue.Patch{Error: &msg, Errors: &errs}
}
