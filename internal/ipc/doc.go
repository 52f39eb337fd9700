// Package ipc exposes the worker over JSON-RPC Unix sockets and ships the
// matching client used by the CLI and the updater.
//
// The Worker service carries the observer protocol: Connect registers an
// observer, Send delivers a command message, Events long-polls broadcasts,
// Status snapshots the daemon and Shutdown asks it to exit. Reuse these types
// when adding endpoints to keep the protocol stable.
package ipc
