// ABOUTME: Package documentation for the messaging package
// ABOUTME: The conversation service and its record-first write path

// Package messaging is the central conversation layer: idempotent two-party
// thread creation, message sends, read marks, and the viewer-scoped queries
// the feed and counter run on.
//
// Writes follow record-first-then-act: a message is persisted before its
// insert event fans out, and a read mark advances the watermark before its
// update event does. Broadcast problems never unwind a write; storage is the
// source of truth and events are derived notifications.
//
// Two-party threads are keyed by a deterministic sorted-pair key, making
// GetOrCreateConversation idempotent even under racing creates: the unique
// constraint catches the loser, which re-looks-up the winner's row.
package messaging
