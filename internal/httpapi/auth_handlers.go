package httpapi

import (
	"net/http"
	"strings"
	"time"

	"punchclock.org/internal/auth"
)

type tokenRequest struct {
	Member string   `json:"member"`
	Roles  []string `json:"roles"`
	Admin  bool     `json:"admin"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	member := strings.TrimSpace(req.Member)
	if member == "" {
		writeError(w, r, http.StatusBadRequest, "member is required")
		return
	}
	// Roles may be empty: a member with no bindings still punches in a
	// group whose policy is unconfigured.
	roles := make([]string, 0, len(req.Roles))
	for _, role := range req.Roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		roles = append(roles, role)
	}

	token, err := auth.GenerateToken(member, roles, req.Admin, a.tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := a.clk.Now().UTC().Add(a.tokenTTL)
	_ = a.audit(r.Context(), "auth.token.issued", map[string]any{
		"member":     member,
		"roles":      roles,
		"admin":      req.Admin,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
