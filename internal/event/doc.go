// ABOUTME: Package documentation for the event package
// ABOUTME: Typed message events and the validating decode boundary

// Package event defines the MessageEvent union carried on viewer message
// streams and the validating decode that guards the boundary between loose
// wire JSON and typed business logic.
//
// Backend push payloads are loosely typed; Decode is the single entry point
// that turns them into a well-formed MessageEvent (insert | update) or a
// typed rejection (ErrUnknownKind, ErrMissingField, ErrBadTimestamp). The
// feed reconciler and unread counter only ever see decoded events.
package event
