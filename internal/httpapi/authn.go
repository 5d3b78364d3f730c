package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"punchclock.org/internal/auth"
	"punchclock.org/internal/policy"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := auth.ContextWithUser(r.Context(), auth.User{
			ID:    claims.Subject,
			Roles: claims.Roles,
			Admin: claims.Admin,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireActor resolves the authenticated caller into a policy actor. The
// auth middleware rejects anonymous requests first, so a miss here means a
// handler was wired onto a public path by mistake.
func (a *API) requireActor(w http.ResponseWriter, r *http.Request) (policy.Actor, bool) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok || u.ID == "" {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return policy.Actor{}, false
	}
	return policy.Actor{MemberID: u.ID, Roles: u.Roles, Admin: u.Admin}, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
