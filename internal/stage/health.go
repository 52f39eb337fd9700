// Package stage reports the readiness of the worker's components.
package stage

import "context"

// Health summarizes the readiness of a component.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Checker is implemented by components that can report their own health.
type Checker interface {
	HealthCheck(ctx context.Context) Health
}

// Collect runs every checker in order. Nil checkers are skipped.
func Collect(ctx context.Context, checkers ...Checker) []Health {
	out := make([]Health, 0, len(checkers))
	for _, c := range checkers {
		if c == nil {
			continue
		}
		out = append(out, c.HealthCheck(ctx))
	}
	return out
}

// AllReady reports whether every record is ready.
func AllReady(records []Health) bool {
	for _, h := range records {
		if !h.Ready {
			return false
		}
	}
	return true
}
