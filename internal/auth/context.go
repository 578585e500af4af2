// ABOUTME: Authenticated identity propagation through request contexts
// ABOUTME: Provides WithIdentity/FromContext for handlers and the stream session

package auth

import (
	"context"
)

// Identity holds the authenticated member information extracted from a
// request. Populated by the auth middleware and retrieved in handlers.
type Identity struct {
	MemberID string
	Handle   string
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if
// not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}

// MustFromContext retrieves the Identity from the context, panicking if
// not present. Only for handlers behind the auth middleware.
func MustFromContext(ctx context.Context) *Identity {
	id := FromContext(ctx)
	if id == nil {
		panic("auth: Identity not found in context")
	}
	return id
}
