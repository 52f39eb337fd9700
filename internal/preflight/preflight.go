package preflight

import (
	"context"

	"imgworker/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
// Endpoint checks run only when the URL is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("Runtime directory", cfg.Paths.RuntimeDir)}

	if cfg.Worker.ImageListURL != "" {
		results = append(results, CheckEndpoint(ctx, "Image list", cfg.Worker.ImageListURL))
	}
	if cfg.Worker.ImageUploadURL != "" {
		results = append(results, CheckEndpoint(ctx, "Image upload", cfg.Worker.ImageUploadURL))
	}
	return results
}
