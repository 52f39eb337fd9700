package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/wb-go/wbf/retry"

	"imgworker/internal/logging"
	"imgworker/internal/queue"
	"imgworker/internal/services"
)

// Failure codes reported by the upload endpoint classification.
const (
	CodeUploadFailed = "IMAGE_UPLOAD_FAILED_ERROR"
	CodeMaxSize      = "UPLOAD_MAX_SIZE_ERROR"
)

// Response is the endpoint reply, or a locally classified failure.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DefaultRequestTimeout bounds one upload attempt.
const DefaultRequestTimeout = 30 * time.Second

var reservedFields = map[string]struct{}{
	"id": {}, "urls": {}, "partial": {}, "error": {}, "media": {},
}

// Client posts payloads to the upload endpoint.
type Client struct {
	http     *http.Client
	timeout  time.Duration
	strategy retry.Strategy
	logger   *slog.Logger
}

// NewClient constructs a client. A nil http client uses http.DefaultClient.
func NewClient(httpClient *http.Client, timeout time.Duration, strategy retry.Strategy, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if strategy.Attempts <= 0 {
		strategy.Attempts = 1
	}
	return &Client{
		http:     httpClient,
		timeout:  timeout,
		strategy: strategy,
		logger:   logging.NewComponentLogger(logger, "upload"),
	}
}

// Upload sends the payload in planned chunks and stops at the first failure.
// Failures that happen before a request goes out carry no error code.
func (c *Client) Upload(ctx context.Context, target string, maxFiles int, payload queue.Payload) Response {
	target = strings.TrimSpace(target)
	if target == "" {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "upload skipped", "upload_unconfigured",
			logging.String(logging.FieldErrorHint, "set image_upload_url"),
			logging.String(logging.FieldImpact, "item recorded as failed"),
		)
		return Response{}
	}

	chunks := PlanChunks(payload, maxFiles)
	var last Response
	for i, chunk := range chunks {
		body, contentType, err := buildForm(payload, chunk)
		if err != nil {
			c.logger.Warn("build upload form failed", logging.Error(err))
			return Response{}
		}
		last = c.send(ctx, target, body, contentType)
		logging.WithContext(ctx, c.logger).Debug("chunk sent",
			logging.Int("chunk", i+1),
			logging.Int("chunks", len(chunks)),
			logging.Bool("partial", chunk.Partial),
			logging.Bool("success", last.Success),
		)
		if !last.Success {
			return last
		}
	}
	return last
}

func buildForm(payload queue.Payload, chunk Chunk) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("id", payload.ID); err != nil {
		return nil, "", err
	}
	for _, url := range payload.URLs {
		if err := w.WriteField("urls[]", url); err != nil {
			return nil, "", err
		}
	}
	keys := make([]string, 0, len(payload.Fields))
	for key := range payload.Fields {
		if _, reserved := reservedFields[key]; !reserved {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := w.WriteField(key, payload.Fields[key]); err != nil {
			return nil, "", err
		}
	}
	partial := "0"
	if chunk.Partial {
		partial = "1"
	}
	if err := w.WriteField("partial", partial); err != nil {
		return nil, "", err
	}

	if payload.Error != "" {
		if err := w.WriteField("error", payload.Error); err != nil {
			return nil, "", err
		}
	} else {
		for index := chunk.Start; index < chunk.End; index++ {
			url := payload.URLs[index]
			for _, variant := range payload.Datas[url] {
				name := fmt.Sprintf("media[%d][%s]", index, variant.Format)
				part, err := w.CreateFormFile(name, "blob")
				if err != nil {
					return nil, "", err
				}
				if _, err := part.Write(variant.Image); err != nil {
					return nil, "", err
				}
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (c *Client) send(ctx context.Context, target string, body []byte, contentType string) Response {
	var status int
	var respBody []byte
	err := retry.Do(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "upload", "build request", "invalid image_upload_url", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return services.Wrap(services.ErrTransient, "upload", "post", "request failed", err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return services.Wrap(services.ErrTransient, "upload", "read", "read response", err)
		}
		status, respBody = resp.StatusCode, data
		return nil
	}, c.strategy)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "upload request failed", "upload_transport_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check connectivity to image_upload_url"),
			logging.String(logging.FieldImpact, "item recorded as failed"),
		)
		return Response{Error: CodeUploadFailed}
	}
	return classify(status, respBody)
}

func classify(status int, body []byte) Response {
	if status >= http.StatusBadRequest {
		if status == http.StatusRequestEntityTooLarge {
			return Response{Error: CodeMaxSize}
		}
		return Response{Error: CodeUploadFailed}
	}
	var out *Response
	if err := json.Unmarshal(bytes.TrimSpace(body), &out); err != nil || out == nil {
		return Response{Error: CodeUploadFailed}
	}
	return *out
}
