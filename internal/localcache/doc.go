// Package localcache persists per-viewer feed snapshots and badge counts
// in a local bbolt file.
//
// A reconnecting client gets the last persisted snapshot as its first frame
// so the screen paints before the live snapshot arrives. Snapshots expire
// after a TTL; stale ones read back as ErrNoSnapshot.
package localcache
