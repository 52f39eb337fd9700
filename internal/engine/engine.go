package engine

import (
	"log/slog"

	"imgworker/internal/logging"
	"imgworker/internal/queue"
	"imgworker/internal/store"
)

// Middleware returns the pump middleware.
func Middleware(logger *slog.Logger) store.Middleware {
	logger = logging.NewComponentLogger(logger, "engine")
	return func(api store.API, action store.Action, next store.Dispatch) {
		switch act := action.(type) {
		case queue.Advance:
			next(action)
			advance(api, act.Queue, logger)
		case queue.Start:
			next(action)
			if item, ok := api.State().Queue.ByID(act.ID); ok && item.IsProcessing() {
				logger.Debug("item ready",
					logging.String(logging.FieldItemID, item.ID),
					logging.String(logging.FieldQueue, string(item.Queue)),
				)
				api.Dispatch(queue.ItemReady{Item: item})
			}
		case queue.MarkProcessed:
			item, existed := api.State().Queue.ByID(act.ID)
			next(action)
			if existed {
				api.Dispatch(queue.Advance{Queue: item.Queue})
			}
		default:
			next(action)
		}
	}
}

func advance(api store.API, name queue.Name, logger *slog.Logger) {
	state := api.State()
	if len(state.Queue.Processing(name)) > 0 {
		return
	}
	idle := state.Queue.ToBeProcessed(name)
	if state.Halted || len(idle) == 0 {
		if state.Halted && len(idle) > 0 {
			logger.Debug("advance skipped while halted",
				logging.String(logging.FieldQueue, string(name)),
				logging.Int("idle", len(idle)),
			)
		}
		api.Dispatch(queue.Drained{Queue: name})
		return
	}
	api.Dispatch(queue.Start{ID: idle[0].ID})
}
