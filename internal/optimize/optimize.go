// Package optimize turns an optimize-queue payload into encoded variants.
package optimize

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"imgworker/internal/codec"
	"imgworker/internal/logging"
	"imgworker/internal/queue"
	"imgworker/internal/services"
	"imgworker/internal/store"
)

// Per-URL failure codes recorded on the payload.
const (
	CodeUnsupportedImageType = "UNSUPPORTED_IMAGE_TYPE"
	CodeCantReadImage        = "CANT_READ_IMAGE_ERROR"
	CodeOptimizationFailed   = "The image optimization failed"
)

// Result aggregates the outcome for every URL of a payload.
type Result struct {
	Success bool
	Datas   map[string][]queue.Variant
	Error   string
	Errors  []string
}

// Optimizer runs the decode/encode fan-out.
type Optimizer struct {
	codec  codec.Codec
	logger *slog.Logger
}

// New constructs an optimizer backed by c.
func New(c codec.Codec, logger *slog.Logger) *Optimizer {
	return &Optimizer{codec: c, logger: logging.NewComponentLogger(logger, "optimizer")}
}

// Optimize processes every URL. A failing URL never stops the others.
func (o *Optimizer) Optimize(ctx context.Context, payload queue.Payload) Result {
	result := Result{Success: true, Datas: make(map[string][]queue.Variant, len(payload.URLs))}
	for _, url := range payload.URLs {
		variants, code := o.optimizeURL(ctx, url)
		if code != "" {
			result.Success = false
			result.Error += code
			result.Errors = append(result.Errors, code)
			continue
		}
		result.Datas[url] = variants
	}
	return result
}

func (o *Optimizer) optimizeURL(ctx context.Context, url string) ([]queue.Variant, string) {
	formats := codec.OutputFormats(codec.Extension(url))
	if len(formats) == 0 {
		o.logger.Debug("source skipped", logging.String("url", url))
		return []queue.Variant{}, ""
	}

	img, err := o.codec.Decode(ctx, url)
	if err != nil {
		code := CodeCantReadImage
		if errors.Is(err, codec.ErrUnsupported) {
			code = CodeUnsupportedImageType
		}
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "source decode failed", "decode_failed",
			logging.String("url", url),
			logging.String("code", code),
			logging.Error(err),
			logging.String(logging.FieldImpact, "url recorded as failed"),
		)
		return nil, code
	}

	variants := make([]queue.Variant, 0, len(formats))
	for _, format := range formats {
		data, err := o.codec.Encode(ctx, img, format)
		if err != nil {
			hint := "check codec configuration"
			if errors.Is(err, services.ErrConfiguration) {
				hint = "install cwebp or set codecs_path"
			}
			logging.WarnWithContext(logging.WithContext(ctx, o.logger), "variant encode failed", "encode_failed",
				logging.String("url", url),
				logging.String("format", string(format)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, hint),
				logging.String(logging.FieldImpact, "url recorded as failed"),
			)
			return nil, CodeOptimizationFailed
		}
		variants = append(variants, queue.Variant{Format: string(format), Image: data})
	}
	return variants, ""
}

// Middleware starts optimization for items that become ready on the
// optimize queue and reports completion through the store.
func (o *Optimizer) Middleware() store.Middleware {
	return func(api store.API, action store.Action, next store.Dispatch) {
		next(action)
		ready, ok := action.(queue.ItemReady)
		if !ok || ready.Item.Queue != queue.Optimize {
			return
		}
		item := ready.Item
		api.Go(func(ctx context.Context, dispatch store.Dispatch) {
			ctx = services.WithItemID(services.WithQueue(ctx, string(item.Queue)), item.ID)
			started := time.Now()
			result := o.Optimize(ctx, item.Payload)
			dispatch(queue.Update{ID: item.ID, Patch: result.Patch()})
			dispatch(queue.MarkProcessed{ID: item.ID})
			logging.WithContext(ctx, o.logger).Info("item optimized",
				logging.Bool("success", result.Success),
				logging.Int("urls", len(item.Payload.URLs)),
				logging.Duration("elapsed", time.Since(started)),
			)
		})
	}
}

// Patch converts the result into a payload patch.
func (r Result) Patch() queue.Patch {
	if !r.Success {
		msg := r.Error
		errs := append([]string(nil), r.Errors...)
		return queue.Patch{Error: &msg, Errors: &errs}
	}
	datas := r.Datas
	return queue.Patch{Datas: &datas}
}
