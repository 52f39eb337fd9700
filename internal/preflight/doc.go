// Package preflight provides readiness checks for the endpoints, binaries
// and filesystem paths imgworker depends on.
//
// The daemon runs RunAll at startup and logs each failure as a warning; the
// worker still starts because observers may supply working URLs later. The
// CLI "imgworker status" command prints the same results.
package preflight
