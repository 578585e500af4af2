// Package dedupe provides idempotency tracking for client message sends
// using a time-based cache: a message id replayed within the window is
// recognized as a duplicate rather than recorded again.
package dedupe
