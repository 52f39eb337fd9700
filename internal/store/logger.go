package store

import (
	"log/slog"

	"imgworker/internal/logging"
	"imgworker/internal/queue"
)

// Logger logs every action and the resulting queue revision at debug level.
func Logger(logger *slog.Logger) Middleware {
	logger = logging.NewComponentLogger(logger, "store")
	return func(api API, action Action, next Dispatch) {
		next(action)
		attrs := []logging.Attr{
			logging.String("action", action.ActionType()),
			logging.Int64("revision", int64(api.State().Revision)),
		}
		switch act := action.(type) {
		case queue.Add:
			attrs = append(attrs, logging.String(logging.FieldItemID, act.Item.ID))
		case queue.Start:
			attrs = append(attrs, logging.String(logging.FieldItemID, act.ID))
		case queue.MarkProcessed:
			attrs = append(attrs, logging.String(logging.FieldItemID, act.ID))
		case queue.Remove:
			attrs = append(attrs, logging.String(logging.FieldItemID, act.ID))
		case queue.Update:
			attrs = append(attrs, logging.String(logging.FieldItemID, act.ID))
		case queue.Advance:
			attrs = append(attrs, logging.String(logging.FieldQueue, string(act.Queue)))
		case queue.Drained:
			attrs = append(attrs, logging.String(logging.FieldQueue, string(act.Queue)))
		}
		logger.Debug("action applied", logging.Args(attrs...)...)
	}
}
