// ABOUTME: Package documentation for the unread package
// ABOUTME: Best-effort unread counter with storage-derived correction

// Package unread maintains a per-viewer count of unread messages for badge
// display, eventually consistent with authoritative storage.
//
// Insert events increment the count on a fast path after a membership check;
// update events do not carry enough detail for incremental adjustment, so
// each schedules a short-delayed full recomputation from storage instead.
// The live count is an approximation: it must always be re-derivable from
// storage, and recomputation (scheduled or via Refresh) restores exactness.
//
// The counter never touches platform badge APIs directly; it notifies a
// Badge sink with the current count on every confirmed increment and every
// recomputation.
package unread
