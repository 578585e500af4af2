// ABOUTME: Package documentation for the broadcast package
// ABOUTME: Per-viewer fan-out of message events over buffered channels

// Package broadcast implements in-memory pub/sub for message events.
//
// The Broadcaster is keyed by viewer id: every session a viewer has open
// subscribes independently and receives its own buffered channel. Publish is
// non-blocking; a subscriber whose buffer is full misses that event rather
// than stalling the publisher. Delivery order per subscriber equals publish
// order.
//
// Subscriptions are cancelled by closing the channel, either explicitly via
// Unsubscribe or automatically when the subscribing context is cancelled.
package broadcast
