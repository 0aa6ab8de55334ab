package authapi

import (
	"net/http"

	"accessgate/cmd/internal/auth/otp"
)

// requireAdmin checks the static operator bearer token.
// With no token configured the admin surface does not exist (404).
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AdminToken == "" {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
			return
		}
		if !secureStringEqual(bearerToken(r), h.cfg.AdminToken) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "admin token required")
			return
		}
		next(w, r)
	}
}

func (h *Handler) handleAdminIssue(w http.ResponseWriter, r *http.Request) {
	var req issueCodeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}

	send := true
	if req.Send != nil {
		send = *req.Send
	}

	out, err := h.auth.IssueCodeForAdmin(r.Context(), otp.AdminIssueInput{
		PhoneNumber: req.PhoneNumber,
		Channel:     channelOrDefault(req.Channel),
		TTLMinutes:  req.TTLMinutes,
		MaxAttempts: req.MaxAttempts,
		Send:        send,
	})
	if err != nil {
		h.writeServiceError(w, r, "admin.issue_code", err)
		return
	}

	h.log.InfoContext(r.Context(), "admin.issue_code", "access_code_id", out.ID, "channel", string(out.Channel), "send", send)
	writeJSON(w, http.StatusOK, toIssueCodeResponse(out))
}

func (h *Handler) handleAdminList(w http.ResponseWriter, r *http.Request) {
	codes, err := h.auth.ListRecentCodes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "admin.list_codes", err)
		return
	}
	writeJSON(w, http.StatusOK, toCodeSummaryResponses(codes))
}
