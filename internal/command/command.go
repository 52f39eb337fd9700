// Package command routes observer messages to the worker's handlers.
package command

import (
	"context"
	"log/slog"
	"sync"

	"imgworker/internal/logging"
	"imgworker/internal/store"
)

// Commands understood by the worker and emitted to observers.
const (
	GetConfig    = "get-config"
	SetConfig    = "set-config"
	GetUpdate    = "get-update"
	RemoveItem   = "remove-item"
	SkipWaiting  = "skip-waiting"
	StopWorking  = "stop-working"
	Stopped      = "stopped"
	QueueUpdated = "queue-updated"
)

// Message is one observer-to-worker message.
type Message struct {
	Command string          `json:"command"`
	ID      string          `json:"id,omitempty"`
	Config  *store.Settings `json:"config,omitempty"`
}

// Handler reacts to routed messages. Handlers see every command and ignore
// the ones they do not own.
type Handler interface {
	Handle(ctx context.Context, command string, msg Message, source string)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, command string, msg Message, source string)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, command string, msg Message, source string) {
	f(ctx, command, msg, source)
}

// Router fans messages out to handlers in registration order.
type Router struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

// NewRouter constructs an empty router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{logger: logging.NewComponentLogger(logger, "command")}
}

// AddHandler registers h.
func (r *Router) AddHandler(h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

// Route delivers msg to every handler. It reports false and does nothing
// when msg carries no command.
func (r *Router) Route(ctx context.Context, msg Message, source string) bool {
	if msg.Command == "" {
		return false
	}
	r.mu.RLock()
	handlers := append([]Handler(nil), r.handlers...)
	r.mu.RUnlock()

	r.logger.Debug("routing command",
		logging.String("command", msg.Command),
		logging.String("source", source),
		logging.Int("handlers", len(handlers)),
	)
	for _, h := range handlers {
		h.Handle(ctx, msg.Command, msg, source)
	}
	return true
}

// Known reports whether name is a command observers may send.
func Known(name string) bool {
	switch name {
	case GetConfig, SetConfig, GetUpdate, RemoveItem, SkipWaiting, StopWorking:
		return true
	default:
		return false
	}
}
