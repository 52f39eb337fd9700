package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imgworker/internal/logging"
	"imgworker/internal/services"
)

func newFileLogger(t *testing.T, format, level string) (*slog.Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "worker.log")
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           format,
		OutputPaths:      []string{path},
		ErrorOutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return logger, path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestJSONFormatUsesStandardKeys(t *testing.T) {
	logger, path := newFileLogger(t, "json", "info")
	logger.Info("item optimized", logging.String(logging.FieldItemID, "Optimize/image/42"))

	line := strings.TrimSpace(readLog(t, path))
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if record["msg"] != "item optimized" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record["level"] != "info" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key in %v", record)
	}
	if record[logging.FieldItemID] != "Optimize/image/42" {
		t.Fatalf("unexpected item id: %v", record[logging.FieldItemID])
	}
}

func TestConsoleFormatLiftsSubjectIntoHeader(t *testing.T) {
	logger, path := newFileLogger(t, "console", "info")
	logger = logging.NewComponentLogger(logger, "optimizer")
	logger.Info("encoded",
		logging.String(logging.FieldQueue, "Optimize/image"),
		logging.String(logging.FieldItemID, "Optimize/image/7"),
		logging.Int("variants", 2),
	)

	out := readLog(t, path)
	header := strings.SplitN(out, "\n", 2)[0]
	if !strings.Contains(header, "INFO [optimizer] Optimize/image/7 - encoded") {
		t.Fatalf("unexpected header: %q", header)
	}
	if !strings.Contains(out, "    variants: 2") {
		t.Fatalf("expected variants field, got %q", out)
	}
	if strings.Contains(out, "    component:") {
		t.Fatalf("component should not repeat as a field: %q", out)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	logger, path := newFileLogger(t, "console", "warn")
	logger.Info("hidden")
	logger.Warn("shown")

	out := readLog(t, path)
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "WARN") {
		t.Fatalf("expected warn line: %q", out)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logger, path := newFileLogger(t, "json", "info")
	ctx := services.WithItemID(context.Background(), "ServerUpdate/UPLOAD_IMAGE/9")
	ctx = services.WithQueue(ctx, "ServerUpdate/UPLOAD_IMAGE")
	ctx = services.WithRequestID(ctx, "req-1")
	logging.WithContext(ctx, logger).Info("uploading")

	out := readLog(t, path)
	for _, want := range []string{`"item_id":"ServerUpdate/UPLOAD_IMAGE/9"`, `"queue":"ServerUpdate/UPLOAD_IMAGE"`, `"correlation_id":"req-1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %q", want, out)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logger, path := newFileLogger(t, "json", "info")
	logging.WarnWithContext(logger, "archive failed", "archive_failed", logging.String(logging.FieldImpact, "media not retained"))

	out := readLog(t, path)
	if !strings.Contains(out, `"event_type":"archive_failed"`) {
		t.Fatalf("expected event_type: %q", out)
	}
	if !strings.Contains(out, `"error_hint":"check logs for details"`) {
		t.Fatalf("expected default hint: %q", out)
	}
	if !strings.Contains(out, `"impact":"media not retained"`) {
		t.Fatalf("impact should not be overwritten: %q", out)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger should not be enabled")
	}
}
