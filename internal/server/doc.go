// Package server exposes the hearth REST API and the websocket stream.
//
// # REST Surface
//
// All /v1 endpoints sit behind JWT auth middleware. Handlers translate
// between wire JSON and the domain services; domain sentinel errors map
// onto 404/403/409/422 responses.
//
// # Stream
//
// /v1/stream upgrades to a websocket and runs one feed reconciler and one
// unread counter for the connected viewer. The server pushes:
//
//	snapshot  initial conversation list (cached frame first when available)
//	feed      list updates as message events land
//	badge     unread total changes
//	error     failed client commands
//
// The client sends select, filter, send, read, and refresh frames. On
// disconnect the final list and badge count persist to the local cache so
// the next connect paints immediately.
//
// # Operator Surface
//
// /admin endpoints (member bootstrap, token issuance, stats) are gated on
// the static admin token and disabled when none is configured.
package server
