// Package updater swaps a running worker for a freshly started waiting one.
//
// The handshake mirrors a service-worker update: stop the active worker,
// wait for it to report stopped, tell the waiting worker to skip waiting,
// then shut the old process down.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"imgworker/internal/command"
	"imgworker/internal/ipc"
	"imgworker/internal/logging"
	"imgworker/internal/services"
)

// DefaultTimeout bounds both the wait for a waiting worker and the wait for
// the active worker to stop.
const DefaultTimeout = 10 * time.Second

const defaultPollInterval = 250 * time.Millisecond

// Worker is the client surface of one worker process.
type Worker interface {
	Connect() (string, error)
	Send(observer string, msg command.Message) error
	Events(observer string, since uint64, limit int, wait time.Duration) (*ipc.EventsResponse, error)
	Shutdown() error
	Close() error
}

// Dialer connects to the waiting worker. It fails until one is listening.
type Dialer func() (Worker, error)

// Options tune the handshake.
type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Update performs the swap. It reports false with a nil error when no
// waiting worker appeared within the timeout.
func Update(ctx context.Context, active Worker, dialWaiting Dialer, opts Options) (bool, error) {
	if active == nil || dialWaiting == nil {
		return false, errors.New("updater requires an active worker and a dialer")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	logger := logging.NewComponentLogger(opts.Logger, "updater")

	waiting, err := awaitWaiting(ctx, dialWaiting, opts)
	if err != nil {
		return false, err
	}
	if waiting == nil {
		logger.Info("no waiting worker; nothing to update")
		return false, nil
	}
	defer waiting.Close()

	if err := stopActive(ctx, active, opts.Timeout); err != nil {
		return false, err
	}
	logger.Info("active worker stopped")

	observer, err := waiting.Connect()
	if err != nil {
		return false, fmt.Errorf("connect waiting worker: %w", err)
	}
	if err := waiting.Send(observer, command.Message{Command: command.SkipWaiting}); err != nil {
		return false, fmt.Errorf("skip-waiting: %w", err)
	}
	if err := active.Shutdown(); err != nil {
		return false, fmt.Errorf("shutdown active worker: %w", err)
	}
	logger.Info("worker updated", logging.String(logging.FieldEventType, "worker_updated"))
	return true, nil
}

func awaitWaiting(ctx context.Context, dial Dialer, opts Options) (Worker, error) {
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	for {
		if w, err := dial(); err == nil {
			return w, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-ticker.C:
		}
	}
}

func stopActive(ctx context.Context, active Worker, timeout time.Duration) error {
	observer, err := active.Connect()
	if err != nil {
		return fmt.Errorf("connect active worker: %w", err)
	}
	cursor, err := active.Events(observer, 0, 0, 0)
	if err != nil {
		return fmt.Errorf("read event cursor: %w", err)
	}
	since := cursor.Next

	if err := active.Send(observer, command.Message{Command: command.StopWorking}); err != nil {
		return fmt.Errorf("stop-working: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return services.Wrap(services.ErrTimeout, "updater", "stop-working",
				"active worker did not report stopped", nil)
		}
		resp, err := active.Events(observer, since, 0, remaining)
		if err != nil {
			return fmt.Errorf("await stopped: %w", err)
		}
		for _, evt := range resp.Events {
			if evt.Command == command.Stopped {
				return nil
			}
		}
		since = resp.Next
	}
}
