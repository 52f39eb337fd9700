package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"imgworker/internal/broadcast"
	"imgworker/internal/command"
	"imgworker/internal/logging"
	"imgworker/internal/queue"
	"imgworker/internal/store"
)

// Handler answers get-update, remove-item, skip-waiting and stop-working.
func (o *Orchestrator) Handler() command.HandlerFunc {
	return func(ctx context.Context, cmd string, msg command.Message, source string) {
		switch cmd {
		case command.GetUpdate:
			o.store.Dispatch(store.Resume{})
			o.advanceAll()
			o.Kick(source)
		case command.RemoveItem:
			o.RemoveItem(msg.ID)
		case command.SkipWaiting:
			if o.opts.Activate != nil {
				o.opts.Activate()
			}
		case command.StopWorking:
			o.StopWorking(ctx)
		}
	}
}

// RemoveItem drops the item carrying payloadID. Processing items are
// refused. It reports whether an item was removed.
func (o *Orchestrator) RemoveItem(payloadID string) bool {
	removed := false
	o.store.Transact(func(api store.API) {
		item, ok := api.State().Queue.ByPayloadID(payloadID)
		if !ok {
			o.logger.Debug("remove-item: no such item", logging.String("payload_id", payloadID))
			return
		}
		if item.IsProcessing() {
			o.logger.Warn("remove-item refused; item is processing",
				logging.String(logging.FieldItemID, item.ID),
				logging.String(logging.FieldEventType, "remove_refused"),
				logging.String(logging.FieldErrorHint, "retry once the item leaves processing"),
			)
			return
		}
		api.Dispatch(queue.Remove{ID: item.ID})
		removed = true
	})
	if removed {
		o.logger.Info("item removed", logging.String("payload_id", payloadID))
	}
	return removed
}

// StopWorking halts the worker, drops every idle item and broadcasts
// stopped once nothing is processing.
func (o *Orchestrator) StopWorking(ctx context.Context) {
	o.scheduler.Stop()

	removed := 0
	o.store.Transact(func(api store.API) {
		api.Dispatch(store.Halt{})
		list := api.State().Queue
		idle := append(list.ToBeProcessed(queue.Optimize), list.ToBeProcessed(queue.Upload)...)
		for _, item := range idle {
			api.Dispatch(queue.Remove{ID: item.ID})
			removed++
		}

		if !api.State().Queue.AnyProcessing() {
			o.announceStopped()
			return
		}
		var once sync.Once
		var unsub func()
		unsub = o.store.Subscribe(func(s store.State, _ store.Action) {
			if s.Queue.AnyProcessing() {
				return
			}
			once.Do(func() {
				unsub()
				o.announceStopped()
			})
		})
	})

	o.logger.Info("stop requested",
		logging.Int("removed", removed),
		logging.String(logging.FieldEventType, "stop_working"),
	)
	if o.opts.Notifier != nil {
		if err := o.opts.Notifier.NotifyWorkerStopped(ctx, removed); err != nil {
			o.logger.Debug("stop notification failed", logging.Error(err))
		}
	}
}

func (o *Orchestrator) announceStopped() {
	o.hub.Publish(broadcast.Event{Command: command.Stopped})
}

// ConfigHandler applies set-config messages.
func ConfigHandler(st interface{ Dispatch(store.Action) }, logger *slog.Logger) command.HandlerFunc {
	logger = logging.NewComponentLogger(logger, "config")
	return func(_ context.Context, cmd string, msg command.Message, source string) {
		if cmd != command.SetConfig {
			return
		}
		if msg.Config == nil {
			logger.Warn("set-config without config ignored",
				logging.String("observer", source),
				logging.String(logging.FieldEventType, "config_invalid"),
			)
			return
		}
		st.Dispatch(store.SetSettings{Settings: *msg.Config})
		logger.Debug("settings replaced", logging.String("observer", source))
	}
}
