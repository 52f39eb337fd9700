package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"imgworker/internal/config"
)

const userAgent = "imgworker/0.1.0"

// Service defines the notification surface exposed to worker components.
type Service interface {
	NotifyUploadFailed(ctx context.Context, payloadID, reason string) error
	NotifyManifestUnavailable(ctx context.Context, url string) error
	NotifyWorkerStopped(ctx context.Context, removed int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyUploadFailed(ctx context.Context, payloadID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	return n.send(ctx, payload{
		title:    "imgworker - Upload Failed",
		message:  fmt.Sprintf("Image %s was not uploaded: %s", strings.TrimSpace(payloadID), reason),
		tags:     []string{"imgworker", "upload", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyManifestUnavailable(ctx context.Context, url string) error {
	return n.send(ctx, payload{
		title:   "imgworker - Manifest Unavailable",
		message: fmt.Sprintf("Polling stopped; could not load %s", strings.TrimSpace(url)),
		tags:    []string{"imgworker", "manifest", "error"},
	})
}

func (n *ntfyService) NotifyWorkerStopped(ctx context.Context, removed int) error {
	return n.send(ctx, payload{
		title:   "imgworker - Stopped",
		message: fmt.Sprintf("Worker stopped; %d pending items dropped", removed),
		tags:    []string{"imgworker", "stopped"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "imgworker - Test",
		message:  "Notification system test",
		tags:     []string{"imgworker", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyUploadFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyManifestUnavailable(context.Context, string) error  { return nil }
func (noopService) NotifyWorkerStopped(context.Context, int) error           { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
