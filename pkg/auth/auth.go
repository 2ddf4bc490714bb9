package auth

import (
	"context"
)

const (
	XUserNameHeader = "X-User-Name"
	XUserRoleHeader = "X-User-Role"

	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the caller as supplied by the identity boundary.
// The core treats it as opaque input.
type Identity struct {
	Username string
	Role     string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanReturn reports whether ident may return a borrowing owned by owner.
// A regular user may only return their own records.
func CanReturn(ident Identity, owner string) bool {
	return ident.IsAdmin() || ident.Username == owner
}

type ctxKey uint8

const identityKey ctxKey = 1

func SetAuthContext(ctx context.Context, username, role string) context.Context {
	return context.WithValue(ctx, identityKey, Identity{Username: username, Role: role})
}

func FromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok
}
