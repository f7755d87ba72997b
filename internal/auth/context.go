package auth

import (
	"context"
	"errors"
)

// Identity is the verified caller of the control API.
type Identity struct {
	Subject  string
	DeviceID string
	Role     string
}

type ctxKey struct{}

var ErrNoIdentity = errors.New("auth: no identity in context")

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the identity stored by RequireAccessToken.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

func Subject(ctx context.Context) (string, error) {
	if id, ok := IdentityFrom(ctx); ok && id.Subject != "" {
		return id.Subject, nil
	}
	return "", ErrNoIdentity
}

func DeviceID(ctx context.Context) (string, error) {
	if id, ok := IdentityFrom(ctx); ok && id.DeviceID != "" {
		return id.DeviceID, nil
	}
	return "", ErrNoIdentity
}

func Role(ctx context.Context) (string, error) {
	if id, ok := IdentityFrom(ctx); ok && id.Role != "" {
		return id.Role, nil
	}
	return "", ErrNoIdentity
}
