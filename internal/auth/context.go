package auth

import "context"

type userContextKey struct{}

// User is the authenticated caller attached to a request context.
type User struct {
	ID    string
	Roles []string
	Admin bool
}

// ContextWithUser attaches the authenticated user to the context.
func ContextWithUser(ctx context.Context, u User) context.Context {
	u.Roles = dedupeRoles(u.Roles)
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext extracts the authenticated user.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	u, ok := ctx.Value(userContextKey{}).(User)
	return u, ok
}

// UserIDFromContext returns the authenticated member id if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	u, ok := UserFromContext(ctx)
	if !ok || u.ID == "" {
		return "", false
	}
	return u.ID, true
}

// RolesFromContext returns the caller's deduplicated role ids.
func RolesFromContext(ctx context.Context) []string {
	u, _ := UserFromContext(ctx)
	return u.Roles
}

// HasRole reports whether the caller holds the given role id.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}
