package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"accessgate/cmd/access"
	"accessgate/cmd/internal/auth/delivery"
	"accessgate/cmd/internal/auth/otp"
	"accessgate/cmd/internal/auth/throttle"
	"accessgate/cmd/security/token"
)

const (
	testPhone      = "010-1234-5678"
	testAdminToken = "admin-secret-token"
)

type plainSecrets struct{}

func (plainSecrets) Hash(plain string) (string, error)         { return "h:" + plain, nil }
func (plainSecrets) Matches(plain, digest string) (bool, error) { return digest == "h:"+plain, nil }

// inbox captures delivered codes so tests can redeem them.
type inbox struct {
	mu   sync.Mutex
	msgs []delivery.Message
	err  error
}

func (b *inbox) Send(_ context.Context, msg delivery.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.msgs = append(b.msgs, msg)
	return nil
}

func (b *inbox) last(t *testing.T) delivery.Message {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.msgs) == 0 {
		t.Fatalf("no code delivered")
	}
	return b.msgs[len(b.msgs)-1]
}

type testServer struct {
	h     *Handler
	mux   http.Handler
	inbox *inbox
	store *access.MemoryStore
}

func newTestServer(t *testing.T, mutate func(*Config), opts ...HandlerOption) *testServer {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := access.NewMemoryStore()
	box := &inbox{}
	svc := otp.NewService(otp.DefaultConfig(), store, plainSecrets{}, token.NewHasher(nil), box, otp.WithLogger(log))

	cfg := DefaultConfig()
	cfg.AdminToken = testAdminToken
	if mutate != nil {
		mutate(&cfg)
	}

	h, err := NewHandler(log, cfg, svc, opts...)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)

	return &testServer{h: h, mux: h.RequireSession(mux), inbox: box, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, mod func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "203.0.113.7:4242"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if mod != nil {
		mod(req)
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()

	rr := s.do(t, http.MethodPost, "/api/public/auth/request-code", map[string]string{"phoneNumber": testPhone}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("request-code status=%d body=%s", rr.Code, rr.Body.String())
	}
	code := s.inbox.last(t).Code

	rr = s.do(t, http.MethodPost, "/api/public/auth/verify-code", map[string]string{"phoneNumber": testPhone, "code": code}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify-code status=%d body=%s", rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	t.Fatalf("no session cookie set")
	return nil
}

func assertErrorBody(t *testing.T, rr *httptest.ResponseRecorder, code string) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	if body.Code != code {
		t.Fatalf("error code=%q want %q (body=%s)", body.Code, code, rr.Body.String())
	}
	return body
}

func TestRequestCode_ResponseShape(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/api/public/auth/request-code", map[string]string{"phoneNumber": testPhone}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	var resp requestCodeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Sent || resp.Channel != "KAKAO" || resp.MaxAttempts != 5 {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.MaskedPhoneNumber != "***5678" {
		t.Fatalf("masked=%q", resp.MaskedPhoneNumber)
	}
	var raw map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["code"]; ok {
		t.Fatalf("public response leaked the code")
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store")
	}
}

func TestRequestCode_BadInput(t *testing.T) {
	s := newTestServer(t, nil)

	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "nope"},
		{"bad phone", `{"phoneNumber":"12"}`},
		{"bad channel", `{"phoneNumber":"010-1234-5678","channel":"SMS"}`},
		{"unknown field", `{"phoneNumber":"010-1234-5678","extra":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/public/auth/request-code", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			s.mux.ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			assertErrorBody(t, rr, "BAD_REQUEST")
		})
	}
}

func TestRequestCode_PhoneCapIs429(t *testing.T) {
	s := newTestServer(t, nil)

	for i := 0; i < otp.DefaultConfig().MaxRequestsPerHour; i++ {
		rr := s.do(t, http.MethodPost, "/api/public/auth/request-code", map[string]string{"phoneNumber": testPhone}, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i+1, rr.Code)
		}
	}

	rr := s.do(t, http.MethodPost, "/api/public/auth/request-code", map[string]string{"phoneNumber": testPhone}, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "3600" {
		t.Fatalf("Retry-After=%q", rr.Header().Get("Retry-After"))
	}
	assertErrorBody(t, rr, "TOO_MANY_REQUESTS")
}

func TestRequestCode_DeliveryFailureIs500(t *testing.T) {
	s := newTestServer(t, nil)
	s.inbox.err = errors.New("webhook down")

	rr := s.do(t, http.MethodPost, "/api/public/auth/request-code", map[string]string{"phoneNumber": testPhone}, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	body := assertErrorBody(t, rr, "INTERNAL_ERROR")
	if strings.Contains(body.Message, "webhook") {
		t.Fatalf("internal detail leaked: %q", body.Message)
	}
}

func TestIPThrottle_BlocksBeforeService(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := newTestServer(t, func(c *Config) {
		c.VerifyCodeIPMax = 2
		c.VerifyCodeIPWindow = time.Minute
	}, WithLimiter(throttle.NewMemoryLimiter(func() time.Time { return now })))

	body := map[string]string{"phoneNumber": testPhone, "code": "000000"}
	for i := 0; i < 2; i++ {
		if rr := s.do(t, http.MethodPost, "/api/public/auth/verify-code", body, nil); rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status=%d", i+1, rr.Code)
		}
	}
	rr := s.do(t, http.MethodPost, "/api/public/auth/verify-code", body, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After")
	}
	if n := len(s.store.Attempts()); n != 2 {
		t.Fatalf("throttled request reached the service: %d audit rows", n)
	}
}

func TestVerifyCode_WrongCodeIs401(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/api/public/auth/verify-code", map[string]string{"phoneNumber": testPhone, "code": "111111"}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rr.Code)
	}
	body := assertErrorBody(t, rr, "UNAUTHORIZED")
	if body.Message != "Invalid or expired code" {
		t.Fatalf("message=%q", body.Message)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatalf("failed verify must not set a cookie")
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodGet, "/api/public/auth/session", nil, nil)
	var st sessionStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Code != http.StatusOK || st.Authenticated || st.SessionExpiresAt != nil {
		t.Fatalf("anonymous status=%d resp=%+v", rr.Code, st)
	}

	cookie := s.login(t)
	if !cookie.HttpOnly || cookie.Path != "/" {
		t.Fatalf("cookie attrs=%+v", cookie)
	}
	withCookie := func(r *http.Request) { r.AddCookie(cookie) }

	rr = s.do(t, http.MethodGet, "/api/public/auth/session", nil, withCookie)
	st = sessionStatusResponse{}
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Authenticated || st.SessionExpiresAt == nil {
		t.Fatalf("expected authenticated, got %+v", st)
	}

	if rr = s.do(t, http.MethodGet, "/api/public/me", nil, withCookie); rr.Code != http.StatusOK {
		t.Fatalf("me status=%d", rr.Code)
	}

	rr = s.do(t, http.MethodPost, "/api/public/auth/logout", nil, withCookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status=%d", rr.Code)
	}
	cleared := rr.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %+v", cleared)
	}

	if rr = s.do(t, http.MethodGet, "/api/public/me", nil, withCookie); rr.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token status=%d", rr.Code)
	}
}

func TestLogout_WithoutCookie(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodPost, "/api/public/auth/logout", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var resp logoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || !resp.Success {
		t.Fatalf("resp=%+v err=%v", resp, err)
	}
}

func TestRequireSession(t *testing.T) {
	s := newTestServer(t, nil)

	cases := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health open", http.MethodGet, "/api/public/health", http.StatusOK},
		{"auth routes open", http.MethodGet, "/api/public/auth/session", http.StatusOK},
		{"preflight open", http.MethodOptions, "/api/public/me", http.StatusMethodNotAllowed},
		{"outside public prefix", http.MethodGet, "/somewhere-else", http.StatusNotFound},
		{"gated resource", http.MethodGet, "/api/public/me", http.StatusUnauthorized},
		{"gated unknown path", http.MethodGet, "/api/public/projects", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.do(t, tc.method, tc.path, nil, nil)
			if rr.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.want, rr.Body.String())
			}
			if tc.want == http.StatusUnauthorized {
				body := assertErrorBody(t, rr, "UNAUTHORIZED")
				if body.Message != gateMessage {
					t.Fatalf("message=%q", body.Message)
				}
			}
		})
	}
}

func TestRequireSession_Disabled(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.AuthEnabled = false })

	if rr := s.do(t, http.MethodGet, "/api/public/projects", nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("disabled gate should pass through, status=%d", rr.Code)
	}
}

func TestAdmin_Auth(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, http.MethodGet, "/api/admin/access-codes", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status=%d", rr.Code)
	}
	rr = s.do(t, http.MethodGet, "/api/admin/access-codes", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer wrong")
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status=%d", rr.Code)
	}

	off := newTestServer(t, func(c *Config) { c.AdminToken = "" })
	rr = off.do(t, http.MethodGet, "/api/admin/access-codes", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer ")
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unconfigured admin status=%d", rr.Code)
	}
	assertErrorBody(t, rr, "NOT_FOUND")
}

func TestAdmin_IssueAndList(t *testing.T) {
	s := newTestServer(t, nil)
	admin := func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+testAdminToken) }

	rr := s.do(t, http.MethodPost, "/api/admin/access-codes", map[string]any{
		"phoneNumber": testPhone,
		"channel":     "pass",
		"ttlMinutes":  60,
		"send":        false,
	}, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("issue status=%d body=%s", rr.Code, rr.Body.String())
	}
	var issued issueCodeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &issued); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(issued.Code) != 6 || issued.Channel != "PASS" || issued.PhoneNumber != "+821012345678" {
		t.Fatalf("issued=%+v", issued)
	}
	if got := issued.ExpiresAt.Sub(issued.CreatedAt); got != time.Hour {
		t.Fatalf("ttl=%v", got)
	}
	if len(s.inbox.msgs) != 0 {
		t.Fatalf("send=false must not deliver")
	}

	rr = s.do(t, http.MethodGet, "/api/admin/access-codes", nil, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), `"code"`) || strings.Contains(rr.Body.String(), "codeHash") {
		t.Fatalf("listing leaked a code: %s", rr.Body.String())
	}
	var list []codeSummaryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0].ID != issued.ID || list[0].Used {
		t.Fatalf("list=%+v", list)
	}
}

func TestAdmin_IssueEmptyBodyStillValidates(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/access-codes", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	// No phone in an empty body: validation still applies.
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	assertErrorBody(t, rr, "BAD_REQUEST")
}
