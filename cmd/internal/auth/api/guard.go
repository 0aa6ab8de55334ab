package authapi

import (
	"net/http"
	"strings"
)

const gateMessage = "Authentication code is required"

// RequireSession admits /api/public/ requests only with a valid session cookie.
// Auth routes, health, preflight requests and everything outside /api/public/ pass through.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.gateApplies(r) {
			next.ServeHTTP(w, r)
			return
		}

		tok, _ := h.sessionTokenFromCookie(r)
		ok, err := h.auth.IsSessionValid(r.Context(), tok)
		if err != nil {
			h.log.ErrorContext(r.Context(), "auth.gate.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", gateMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) gateApplies(r *http.Request) bool {
	if !h.cfg.AuthEnabled || r.Method == http.MethodOptions {
		return false
	}

	p := r.URL.Path
	switch {
	case !strings.HasPrefix(p, "/api/public/"):
		return false
	case strings.HasPrefix(p, "/api/public/auth/"):
		return false
	case p == "/api/public/health" || p == "/api/public/health/":
		return false
	default:
		return true
	}
}
