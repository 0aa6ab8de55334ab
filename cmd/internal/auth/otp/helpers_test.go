package otp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"accessgate/cmd/access"
	"accessgate/cmd/internal/auth/audit"
	"accessgate/cmd/internal/auth/delivery"
	"accessgate/cmd/security/token"
)

// plainSecrets keeps tests fast: the "digest" is the code with a prefix.
type plainSecrets struct{}

func (plainSecrets) Hash(plain string) (string, error) { return "h:" + plain, nil }

func (plainSecrets) Matches(plain, digest string) (bool, error) {
	if !strings.HasPrefix(digest, "h:") {
		return false, errors.New("bad digest")
	}
	return digest == "h:"+plain, nil
}

type stubSender struct {
	mu   sync.Mutex
	msgs []delivery.Message
	err  error
}

func (s *stubSender) Send(_ context.Context, msg delivery.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *stubSender) sent() []delivery.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delivery.Message(nil), s.msgs...)
}

type stubPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (p *stubPublisher) Publish(_ context.Context, ev audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type stubRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *stubRecorder) ObserveAttempt(reason string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	key := reason
	if success {
		key += ":ok"
	}
	r.counts[key]++
}

// digitPattern yields the same digits forever, so every generated code is "123456".
type digitPattern struct{}

func (digitPattern) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(1 + i%codeDigits)
	}
	return len(p), nil
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc    *Service
	store  *access.MemoryStore
	sender *stubSender
	events *stubPublisher
	counts *stubRecorder
	clock  *testClock
}

const (
	testPhone      = "010-1234-5678"
	testPhoneNorm  = "+821012345678"
	testCode       = "123456"
	testWrongCode  = "000000"
	testChannelRaw = "kakao"
)

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		store:  access.NewMemoryStore(),
		sender: &stubSender{},
		events: &stubPublisher{},
		counts: &stubRecorder{},
		clock:  &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}

	base := []Option{
		WithClock(h.clock.Now),
		WithRandom(digitPattern{}),
		WithPublisher(h.events),
		WithRecorder(h.counts),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	h.svc = NewService(cfg, h.store, plainSecrets{}, token.NewHasher(nil), h.sender, append(base, opts...)...)
	return h
}

func (h *harness) reasons() []access.Reason {
	rows := h.store.Attempts()
	out := make([]access.Reason, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Reason)
	}
	return out
}

func (h *harness) countReason(reason access.Reason) int {
	n := 0
	for _, r := range h.store.Attempts() {
		if r.Reason == reason {
			n++
		}
	}
	return n
}

func (h *harness) mustRequest(t *testing.T) CodeRequested {
	t.Helper()
	out, err := h.svc.RequestCode(context.Background(), RequestCodeInput{
		PhoneNumber: testPhone,
		Channel:     testChannelRaw,
		Client:      access.Client{IPAddress: "203.0.113.7", UserAgent: "test-agent"},
	})
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	return out
}

func (h *harness) verify(code string) (Verified, error) {
	return h.svc.VerifyCode(context.Background(), VerifyCodeInput{
		PhoneNumber: testPhone,
		Channel:     testChannelRaw,
		Code:        code,
		Client:      access.Client{IPAddress: "203.0.113.7"},
	})
}

func intPtr(v int) *int { return &v }
