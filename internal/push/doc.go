// Package push delivers unread badge counts over the Web Push protocol.
//
// When a member has no open session, their badge recomputes still need to
// land somewhere; this package signs a small JSON payload with the
// operator's VAPID keys and posts it to every browser subscription the
// member registered. Endpoints that return 404 or 410 are pruned.
package push
