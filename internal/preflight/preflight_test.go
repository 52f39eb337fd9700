package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"imgworker/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list":
			w.WriteHeader(http.StatusOK)
		case "/upload":
			w.WriteHeader(http.StatusMethodNotAllowed)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	if r := CheckEndpoint(context.Background(), "list", srv.URL+"/list"); !r.Passed {
		t.Fatalf("expected list reachable: %s", r.Detail)
	}
	if r := CheckEndpoint(context.Background(), "upload", srv.URL+"/upload"); !r.Passed {
		t.Fatalf("405 should count as reachable: %s", r.Detail)
	}
	if r := CheckEndpoint(context.Background(), "broken", srv.URL+"/broken"); r.Passed {
		t.Fatal("expected 502 to fail")
	}
	if r := CheckEndpoint(context.Background(), "empty", ""); r.Passed {
		t.Fatal("expected missing url to fail")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.RuntimeDir = t.TempDir()

	results := RunAll(context.Background(), &cfg)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Passed {
		t.Errorf("check %q failed: %s", results[0].Name, results[0].Detail)
	}
}

func TestRunAll_IncludesEndpointsWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.RuntimeDir = t.TempDir()
	cfg.Worker.ImageListURL = srv.URL + "/list"
	cfg.Worker.ImageUploadURL = srv.URL + "/upload"

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestCheckSystemDepsReportsCWebP(t *testing.T) {
	cfg := config.Default()
	cfg.Codec.CWebPBinary = "definitely-not-a-real-cwebp"
	statuses := CheckSystemDeps(&cfg)
	if len(statuses) != 1 || statuses[0].Name != "cwebp" || statuses[0].Available {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
}
