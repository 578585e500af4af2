// Package members manages club member profiles.
//
// Profiles are stored in the database and fronted by a five-minute TTL
// cache keyed by member id, so hot reads during feed assembly do not hit
// storage. Writes sanitize free-text fields and invalidate the cache entry.
package members
