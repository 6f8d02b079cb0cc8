// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithUser/UserFromContext for propagating auth info via context

package auth

import (
	"context"
)

// Identity holds the authenticated owner information extracted from a request.
// This is populated by the auth middleware and retrieved from context in handlers.
type Identity struct {
	UserID string
	Email  string
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithUser returns a new context with the Identity attached.
func WithUser(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// UserFromContext retrieves the Identity from the context, returning nil if not present.
func UserFromContext(ctx context.Context) *Identity {
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

// MustUserFromContext retrieves the Identity from the context, panicking if not present.
func MustUserFromContext(ctx context.Context) *Identity {
	id := UserFromContext(ctx)
	if id == nil {
		panic("auth: Identity not found in context")
	}
	return id
}
