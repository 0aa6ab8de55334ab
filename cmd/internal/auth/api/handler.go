package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"accessgate/cmd/access"
	"accessgate/cmd/internal/auth/otp"
	"accessgate/cmd/internal/auth/throttle"
)

const defaultChannel = string(access.ChannelKakao)

// AuthService is the code flow the handler drives (implemented by *otp.Service).
type AuthService interface {
	RequestCode(ctx context.Context, in otp.RequestCodeInput) (otp.CodeRequested, error)
	IssueCodeForAdmin(ctx context.Context, in otp.AdminIssueInput) (otp.IssuedCode, error)
	VerifyCode(ctx context.Context, in otp.VerifyCodeInput) (otp.Verified, error)
	SessionStatus(ctx context.Context, tok string) (otp.SessionStatus, error)
	IsSessionValid(ctx context.Context, tok string) (bool, error)
	RevokeSession(ctx context.Context, tok string) error
	ListRecentCodes(ctx context.Context) ([]otp.CodeSummary, error)
}

// Handler wires HTTP auth endpoints to the code flow.
type Handler struct {
	log *slog.Logger
	cfg Config

	auth    AuthService
	limiter throttle.Limiter
	now     func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithLimiter sets the per-IP throttle. Default: throttle.Nop.
func WithLimiter(l throttle.Limiter) HandlerOption {
	return func(h *Handler) {
		if h == nil || l == nil {
			return
		}
		h.limiter = l
	}
}

// WithClock overrides time.Now for cookie lifetimes (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, auth AuthService, opts ...HandlerOption) (*Handler, error) {
	if auth == nil {
		return nil, errors.New("auth: nil auth service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:     log,
		cfg:     cfg,
		auth:    auth,
		limiter: throttle.Nop{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/public/auth/request-code", h.handleRequestCode)
	mux.HandleFunc("POST /api/public/auth/verify-code", h.handleVerifyCode)
	mux.HandleFunc("GET /api/public/auth/session", h.handleSession)
	mux.HandleFunc("POST /api/public/auth/logout", h.handleLogout)
	mux.HandleFunc("GET /api/public/health", h.handleHealth)
	mux.HandleFunc("GET /api/public/me", h.handleMe)

	mux.HandleFunc("POST /api/admin/access-codes", h.requireAdmin(h.handleAdminIssue))
	mux.HandleFunc("GET /api/admin/access-codes", h.requireAdmin(h.handleAdminList))
}

// ---- handlers ----

func (h *Handler) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Request body is required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	if blocked, retryAfter := h.checkIPThrottle(ctx, routeRequestCode, ip); blocked {
		writeRateLimited(w, retryAfter, "Too many requests. Try again later.")
		return
	}

	out, err := h.auth.RequestCode(ctx, otp.RequestCodeInput{
		PhoneNumber: req.PhoneNumber,
		Channel:     channelOrDefault(req.Channel),
		Client:      access.Client{IPAddress: ipString(ip), UserAgent: r.UserAgent()},
	})
	if err != nil {
		h.writeServiceError(w, r, "auth.request_code", err)
		return
	}

	writeJSON(w, http.StatusOK, requestCodeResponse{
		Sent:              true,
		MaskedPhoneNumber: out.MaskedPhoneNumber,
		Channel:           string(out.Channel),
		CodeExpiresAt:     out.CodeExpiresAt,
		MaxAttempts:       out.MaxAttempts,
	})
}

func (h *Handler) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Request body is required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, h.cfg.TrustProxy)
	if blocked, retryAfter := h.checkIPThrottle(ctx, routeVerifyCode, ip); blocked {
		writeRateLimited(w, retryAfter, "Too many requests. Try again later.")
		return
	}

	out, err := h.auth.VerifyCode(ctx, otp.VerifyCodeInput{
		PhoneNumber: req.PhoneNumber,
		Channel:     channelOrDefault(req.Channel),
		Code:        req.Code,
		Client:      access.Client{IPAddress: ipString(ip), UserAgent: r.UserAgent()},
	})
	if err != nil {
		h.writeServiceError(w, r, "auth.verify_code", err)
		return
	}

	h.setSessionCookie(w, out.SessionToken, out.SessionExpiresAt)
	writeJSON(w, http.StatusOK, verifyCodeResponse{Authenticated: true, SessionExpiresAt: out.SessionExpiresAt})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	tok, _ := h.sessionTokenFromCookie(r)

	st, err := h.auth.SessionStatus(r.Context(), tok)
	if err != nil {
		h.writeServiceError(w, r, "auth.session", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionStatusResponse{Authenticated: st.Authenticated, SessionExpiresAt: st.SessionExpiresAt})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok, _ := h.sessionTokenFromCookie(r)

	if err := h.auth.RevokeSession(r.Context(), tok); err != nil {
		h.writeServiceError(w, r, "auth.logout", err)
		return
	}
	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, logoutResponse{Success: true})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleMe is the sample gated resource; RequireSession has already admitted the caller.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	tok, _ := h.sessionTokenFromCookie(r)

	st, err := h.auth.SessionStatus(r.Context(), tok)
	if err != nil {
		h.writeServiceError(w, r, "auth.me", err)
		return
	}
	if !st.Authenticated {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", gateMessage)
		return
	}
	writeJSON(w, http.StatusOK, sessionStatusResponse{Authenticated: true, SessionExpiresAt: st.SessionExpiresAt})
}

// ---- errors ----

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	switch {
	case access.IsInvalidRequest(err):
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", invalidMessage(err))
	case access.IsUnauthorized(err):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired code")
	case access.IsTooManyRequests(err):
		writeRateLimited(w, phoneCapRetryAfter, "Too many code requests. Try again later.")
	default:
		h.log.ErrorContext(r.Context(), event+".fail", "err", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

// invalidMessage exposes validation detail only; it never carries a code or token.
func invalidMessage(err error) string {
	var oe access.OpError
	if errors.As(err, &oe) && oe.Msg != "" {
		return oe.Msg
	}
	return "invalid request"
}

func channelOrDefault(ch string) string {
	if strings.TrimSpace(ch) == "" {
		return defaultChannel
	}
	return ch
}
