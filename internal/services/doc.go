// Package services defines shared utilities consumed by the queue pipelines
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, queue names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so infrastructure failures
//     (codec binaries, HTTP endpoints, configuration) can be classified with
//     errors.Is instead of string matching.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform across the worker.
package services
