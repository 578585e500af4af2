// Package auth provides authentication for the hearth API and stream.
//
// # Authentication
//
// Members authenticate with JWT tokens signed with HS256 using the
// configured jwt_secret. The REST API takes the token from the
// Authorization header; the WebSocket stream takes it from the token
// query parameter because browsers cannot set headers on upgrades.
//
// The middleware verifies the signature, issuer, and audience, confirms
// the subject member still exists, and attaches an Identity to the
// request context:
//
//	id := auth.FromContext(r.Context())
//
// # Operator Access
//
// Admin endpoints are gated on a static admin token from config, separate
// from member JWTs. With no admin token configured, those endpoints are
// disabled outright.
package auth
