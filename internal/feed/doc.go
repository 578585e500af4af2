// ABOUTME: Package documentation for the feed package
// ABOUTME: Conversation feed reconciler merging snapshots with live events

// Package feed implements the conversation feed reconciler: an ordered,
// freshest-first list of a viewer's conversations kept current by merging an
// initial backend snapshot with a live stream of message events, without a
// full refetch per event.
//
// # Merge semantics
//
// MergeEvent is pure given (list, event, viewerID, selectedID): an insert
// for a known conversation refreshes its last message, moves it to the head,
// and increments its unread count unless the viewer sent it or has the
// conversation selected. An insert for an unknown conversation triggers an
// asynchronous detail fetch; the result is inserted at the head only if no
// entry with that id appeared in the meantime, so duplicate events racing a
// fetch yield exactly one entry.
//
// # Concurrency
//
// One run goroutine per Feed consumes the subscription channel in delivery
// order. Cross-goroutine access (Select, Filtered, Snapshot, Retry) is
// serialized by a mutex held briefly; a liveness flag bars mutation after
// Close. Detail fetches run detached with their own timeout and are
// collapsed per conversation id.
//
// # Failure semantics
//
// A failed snapshot surfaces as StateError with Retry available; previously
// loaded state is never corrupted. A failed detail fetch is logged and its
// event dropped; the conversation reappears on the next full snapshot.
package feed
