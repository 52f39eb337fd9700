// Package manifest reconciles the remote image list against the queue.
//
// Refresh fetches the list from the configured URL and Apply diffs it against
// current items: new identities are queued for optimization, changed URL lists
// are patched (or sent back to optimization when the item already reached the
// upload queue), vanished identities are dropped, and processed uploads
// beyond the retention cap are evicted. Items that are processing or carry an
// error are never touched.
package manifest
