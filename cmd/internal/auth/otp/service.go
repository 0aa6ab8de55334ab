package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"accessgate/cmd/access"
	"accessgate/cmd/internal/auth/audit"
	"accessgate/cmd/internal/auth/delivery"
	"accessgate/cmd/security/token"
)

const (
	// maxCASRetries bounds reload-and-reapply rounds when a concurrent verify
	// changed the code between read and write.
	maxCASRetries = 5

	recentCodesLimit = 20
	maxTokenLen      = 512
)

// SecretHasher hashes and checks plaintext codes.
type SecretHasher interface {
	Hash(plain string) (string, error)
	Matches(plain, digest string) (bool, error)
}

// TokenHasher digests session tokens for storage and lookup.
type TokenHasher interface {
	HashHex(tok string) string
}

// AttemptRecorder observes every audited outcome (metrics).
type AttemptRecorder interface {
	ObserveAttempt(reason string, success bool)
}

// Service is the one-time-code auth flow.
//
// It is safe for concurrent use. Cross-request consistency (hourly cap,
// attempt counting, single redemption) is delegated to the store's atomic
// operations; Service keeps no per-phone state of its own.
type Service struct {
	cfg      Config
	store    access.Store
	secrets  SecretHasher
	tokens   TokenHasher
	sender   delivery.Sender
	phones   access.PhoneNormalizer
	events   audit.Publisher
	recorder AttemptRecorder
	log      *slog.Logger

	now      func() time.Time
	random   io.Reader
	newToken func() (string, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRandom overrides the code digit source (tests).
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		if r != nil {
			s.random = r
		}
	}
}

// WithPhoneNormalizer overrides the national plan. Default: access.DefaultNationalPlan().
func WithPhoneNormalizer(p access.PhoneNormalizer) Option {
	return func(s *Service) {
		if p != nil {
			s.phones = p
		}
	}
}

// WithPublisher fans every audit row out to p.
func WithPublisher(p audit.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// WithRecorder counts every audit row.
func WithRecorder(r AttemptRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewService constructs a Service.
func NewService(cfg Config, store access.Store, secrets SecretHasher, tokens TokenHasher, sender delivery.Sender, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		store:    store,
		secrets:  secrets,
		tokens:   tokens,
		sender:   sender,
		phones:   access.DefaultNationalPlan(),
		events:   audit.NopPublisher{},
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		random:   rand.Reader,
		newToken: token.NewSessionToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestCodeInput is a public code request.
type RequestCodeInput struct {
	PhoneNumber string
	Channel     string
	Client      access.Client
}

// CodeRequested is returned to the public caller. It never carries the code.
type CodeRequested struct {
	MaskedPhoneNumber string
	Channel           access.Channel
	CodeExpiresAt     time.Time
	MaxAttempts       int
}

// RequestCode issues and dispatches a code, subject to the hourly cap per phone.
func (s *Service) RequestCode(ctx context.Context, in RequestCodeInput) (CodeRequested, error) {
	const op = "otp.RequestCode"

	phone, ch, err := s.target(in.PhoneNumber, in.Channel)
	if err != nil {
		return CodeRequested{}, err
	}
	now := s.now()
	windowStart := now.Add(-rateWindow)
	capped := func() (CodeRequested, error) {
		s.record(ctx, now, nil, phone, ch, in.Client, false, access.ReasonRateLimited)
		return CodeRequested{}, access.OpError{Op: op, Kind: access.ErrTooManyRequests, Msg: "hourly code cap reached"}
	}

	// Reject before hashing; CreateCode re-checks under the per-phone lock.
	if limit := s.cfg.MaxRequestsPerHour; limit > 0 {
		n, err := s.store.CountCodesSince(ctx, phone, windowStart)
		if err != nil {
			return CodeRequested{}, fmt.Errorf("%s: count codes: %w", op, err)
		}
		if n >= limit {
			return capped()
		}
	}

	plain, code, err := s.newCode(op, phone, ch, s.cfg.codeTTLMinutes(), s.cfg.maxAttempts(), now)
	if err != nil {
		return CodeRequested{}, err
	}

	code, err = s.store.CreateCode(ctx, access.CreateCodeInput{
		Code:        code,
		WindowStart: windowStart,
		WindowMax:   s.cfg.MaxRequestsPerHour,
	})
	if err != nil {
		if access.IsTooManyRequests(err) {
			return capped()
		}
		return CodeRequested{}, fmt.Errorf("%s: create code: %w", op, err)
	}

	if err := s.dispatch(ctx, code, plain); err != nil {
		s.record(ctx, now, &code.ID, phone, ch, in.Client, false, access.ReasonDeliveryFailed)
		return CodeRequested{}, fmt.Errorf("%s: %w", op, err)
	}
	s.record(ctx, now, &code.ID, phone, ch, in.Client, true, access.ReasonCodeSent)

	return CodeRequested{
		MaskedPhoneNumber: access.MaskPhoneNumber(phone),
		Channel:           ch,
		CodeExpiresAt:     code.ExpiresAt,
		MaxAttempts:       code.MaxAttempts,
	}, nil
}

// AdminIssueInput is an operator code request. Nil overrides use the configured defaults.
type AdminIssueInput struct {
	PhoneNumber string
	Channel     string
	TTLMinutes  *int
	MaxAttempts *int
	Send        bool
}

// IssuedCode is returned to the operator, including the plaintext code.
type IssuedCode struct {
	ID          string
	PhoneNumber string
	Channel     access.Channel
	Code        string
	ExpiresAt   time.Time
	MaxAttempts int
	CreatedAt   time.Time
}

// IssueCodeForAdmin issues a code outside the hourly cap and dispatches it only when in.Send is set.
func (s *Service) IssueCodeForAdmin(ctx context.Context, in AdminIssueInput) (IssuedCode, error) {
	const op = "otp.IssueCodeForAdmin"

	phone, ch, err := s.target(in.PhoneNumber, in.Channel)
	if err != nil {
		return IssuedCode{}, err
	}
	now := s.now()

	ttl := s.cfg.CodeTTLMinutes
	if in.TTLMinutes != nil {
		ttl = *in.TTLMinutes
	}
	attempts := s.cfg.CodeMaxAttempts
	if in.MaxAttempts != nil {
		attempts = *in.MaxAttempts
	}

	plain, code, err := s.newCode(op, phone, ch,
		clamp(ttl, codeTTLMinMinutes, adminTTLMaxMinutes),
		clamp(attempts, 1, codeMaxAttemptsCeiling),
		now,
	)
	if err != nil {
		return IssuedCode{}, err
	}

	code, err = s.store.CreateCode(ctx, access.CreateCodeInput{Code: code})
	if err != nil {
		return IssuedCode{}, fmt.Errorf("%s: create code: %w", op, err)
	}

	if in.Send {
		if err := s.dispatch(ctx, code, plain); err != nil {
			s.record(ctx, now, &code.ID, phone, ch, access.Client{}, false, access.ReasonDeliveryFailed)
			return IssuedCode{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	s.record(ctx, now, &code.ID, phone, ch, access.Client{}, true, access.ReasonAdminIssued)

	return IssuedCode{
		ID:          code.ID,
		PhoneNumber: code.PhoneNumber,
		Channel:     code.Channel,
		Code:        plain,
		ExpiresAt:   code.ExpiresAt,
		MaxAttempts: code.MaxAttempts,
		CreatedAt:   code.CreatedAt,
	}, nil
}

// VerifyCodeInput is a redemption attempt.
type VerifyCodeInput struct {
	PhoneNumber string
	Channel     string
	Code        string
	Client      access.Client
}

// Verified carries the new session token. The token is returned exactly once.
type Verified struct {
	SessionToken     string
	SessionExpiresAt time.Time
}

// VerifyCode redeems the latest available code for (phone, channel).
//
// A wrong guess is counted against the code; the guess that exhausts the
// budget locks it. A correct guess marks the code used and opens a session in
// the same store step, so a code is never redeemed twice.
func (s *Service) VerifyCode(ctx context.Context, in VerifyCodeInput) (Verified, error) {
	const op = "otp.VerifyCode"

	phone, ch, err := s.target(in.PhoneNumber, in.Channel)
	if err != nil {
		return Verified{}, err
	}
	candidate := strings.TrimSpace(in.Code)
	if candidate == "" {
		return Verified{}, access.OpError{Op: op, Kind: access.ErrUnauthorized, Msg: "code must not be blank"}
	}
	now := s.now()

	code, err := s.store.LatestAvailableCode(ctx, phone, ch, now)
	if err != nil {
		if access.IsNotFound(err) {
			s.record(ctx, now, nil, phone, ch, in.Client, false, access.ReasonNoActiveCode)
			return Verified{}, unauthorized(op, "no active code")
		}
		return Verified{}, fmt.Errorf("%s: load code: %w", op, err)
	}

	match, err := s.secrets.Matches(candidate, code.CodeHash)
	if err != nil {
		return Verified{}, fmt.Errorf("%s: match code: %w", op, err)
	}

	for round := 0; round < maxCASRetries; round++ {
		if round > 0 {
			code, err = s.store.GetCode(ctx, code.ID)
			if err != nil {
				return Verified{}, fmt.Errorf("%s: reload code: %w", op, err)
			}
		}

		if !code.IsAvailable(now) {
			s.record(ctx, now, &code.ID, phone, ch, in.Client, false, access.ReasonCodeNotAvailable)
			return Verified{}, unauthorized(op, "code expired or locked")
		}

		if !match {
			err = s.store.SwapCode(ctx, code, code.RegisterFailure(now))
			if access.IsConflict(err) {
				continue
			}
			if err != nil {
				return Verified{}, fmt.Errorf("%s: register failure: %w", op, err)
			}
			s.record(ctx, now, &code.ID, phone, ch, in.Client, false, access.ReasonInvalidCode)
			return Verified{}, unauthorized(op, "invalid code")
		}

		out, err := s.redeem(ctx, code, in.Client, now)
		if isStale(err) {
			continue
		}
		if err != nil {
			return Verified{}, fmt.Errorf("%s: %w", op, err)
		}
		s.record(ctx, now, &code.ID, phone, ch, in.Client, true, access.ReasonSuccess)
		return out, nil
	}

	s.log.WarnContext(ctx, "auth.verify.contention", "access_code_id", code.ID, "rounds", maxCASRetries)
	s.record(ctx, now, &code.ID, phone, ch, in.Client, false, access.ReasonCodeNotAvailable)
	return Verified{}, unauthorized(op, "code contention")
}

func (s *Service) redeem(ctx context.Context, code access.AccessCode, client access.Client, now time.Time) (Verified, error) {
	tok, err := s.newToken()
	if err != nil {
		return Verified{}, fmt.Errorf("session token: %w", err)
	}
	id, err := access.NewID(now)
	if err != nil {
		return Verified{}, fmt.Errorf("session id: %w", err)
	}

	ip, ua := client.Normalized()
	sess := access.Session{
		ID:           id,
		AccessCodeID: code.ID,
		TokenHash:    s.tokens.HashHex(tok),
		IPAddress:    ip,
		UserAgent:    ua,
		ExpiresAt:    now.Add(s.cfg.sessionTTL()),
		CreatedAt:    now,
	}

	if err := s.store.RedeemCode(ctx, code, code.MarkUsed(now), sess); err != nil {
		return Verified{}, err
	}
	return Verified{SessionToken: tok, SessionExpiresAt: sess.ExpiresAt}, nil
}

// isStale reports a lost compare-and-swap on the code row. A token hash
// collision is also a conflict but is not retried.
func isStale(err error) bool {
	var ce access.ConflictError
	if errors.As(err, &ce) {
		return ce.Field != "token_hash"
	}
	return access.IsConflict(err)
}

// SessionStatus is the read-only view of a session token.
type SessionStatus struct {
	Authenticated    bool
	SessionExpiresAt *time.Time
}

// SessionStatus reports whether tok names an active session.
// Blank, garbled or unknown tokens report unauthenticated without an error.
func (s *Service) SessionStatus(ctx context.Context, tok string) (SessionStatus, error) {
	const op = "otp.SessionStatus"

	tok = strings.TrimSpace(tok)
	if tok == "" || len(tok) > maxTokenLen {
		return SessionStatus{}, nil
	}

	sess, err := s.store.ActiveSessionByTokenHash(ctx, s.tokens.HashHex(tok), s.now())
	if err != nil {
		if access.IsNotFound(err) {
			return SessionStatus{}, nil
		}
		return SessionStatus{}, fmt.Errorf("%s: %w", op, err)
	}

	exp := sess.ExpiresAt
	return SessionStatus{Authenticated: true, SessionExpiresAt: &exp}, nil
}

// IsSessionValid is SessionStatus reduced to a bool.
func (s *Service) IsSessionValid(ctx context.Context, tok string) (bool, error) {
	st, err := s.SessionStatus(ctx, tok)
	if err != nil {
		return false, err
	}
	return st.Authenticated, nil
}

// RevokeSession revokes the session for tok (logout). Unknown tokens are a no-op.
func (s *Service) RevokeSession(ctx context.Context, tok string) error {
	const op = "otp.RevokeSession"

	tok = strings.TrimSpace(tok)
	if tok == "" || len(tok) > maxTokenLen {
		return nil
	}

	if _, err := s.store.RevokeSessionByTokenHash(ctx, s.tokens.HashHex(tok), s.now()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CodeSummary is the operator view of an issued code. It never carries the code or its hash.
type CodeSummary struct {
	ID           string
	PhoneNumber  string
	Channel      access.Channel
	Used         bool
	AttemptCount int
	MaxAttempts  int
	CreatedAt    time.Time
	ExpiresAt    time.Time
	UsedAt       *time.Time
}

// ListRecentCodes returns the 20 newest codes, newest first.
func (s *Service) ListRecentCodes(ctx context.Context) ([]CodeSummary, error) {
	const op = "otp.ListRecentCodes"

	codes, err := s.store.RecentCodes(ctx, recentCodesLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]CodeSummary, 0, len(codes))
	for _, c := range codes {
		out = append(out, CodeSummary{
			ID:           c.ID,
			PhoneNumber:  c.PhoneNumber,
			Channel:      c.Channel,
			Used:         c.Used,
			AttemptCount: c.AttemptCount,
			MaxAttempts:  c.MaxAttempts,
			CreatedAt:    c.CreatedAt,
			ExpiresAt:    c.ExpiresAt,
			UsedAt:       c.UsedAt,
		})
	}
	return out, nil
}

func (s *Service) target(rawPhone, rawChannel string) (string, access.Channel, error) {
	phone, err := s.phones.Normalize(rawPhone)
	if err != nil {
		return "", "", err
	}
	ch, err := access.ParseChannel(rawChannel)
	if err != nil {
		return "", "", err
	}
	return phone, ch, nil
}

func (s *Service) newCode(op, phone string, ch access.Channel, ttlMinutes, maxAttempts int, now time.Time) (string, access.AccessCode, error) {
	plain, err := generateCode(s.random)
	if err != nil {
		return "", access.AccessCode{}, fmt.Errorf("%s: %w", op, err)
	}
	digest, err := s.secrets.Hash(plain)
	if err != nil {
		return "", access.AccessCode{}, fmt.Errorf("%s: hash code: %w", op, err)
	}
	id, err := access.NewID(now)
	if err != nil {
		return "", access.AccessCode{}, fmt.Errorf("%s: code id: %w", op, err)
	}

	return plain, access.AccessCode{
		ID:          id,
		CodeHash:    digest,
		PhoneNumber: phone,
		Channel:     ch,
		ExpiresAt:   now.Add(time.Duration(ttlMinutes) * time.Minute),
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
	}, nil
}

func (s *Service) dispatch(ctx context.Context, code access.AccessCode, plain string) error {
	err := s.sender.Send(ctx, delivery.Message{
		Channel:     code.Channel,
		PhoneNumber: code.PhoneNumber,
		Code:        plain,
		CreatedAt:   code.CreatedAt,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "auth.delivery.fail",
			"access_code_id", code.ID,
			"channel", string(code.Channel),
			"phone", access.MaskPhoneNumber(code.PhoneNumber),
			"err", err,
		)
		return fmt.Errorf("deliver: %w", err)
	}
	return nil
}

// record appends one audit row. Failures are logged and never replace the caller's outcome.
func (s *Service) record(ctx context.Context, now time.Time, codeID *string, phone string, ch access.Channel, client access.Client, success bool, reason access.Reason) {
	// The row must land even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)

	id, err := access.NewID(now)
	if err != nil {
		s.log.ErrorContext(ctx, "auth.audit.id.fail", "reason", string(reason), "err", err)
		return
	}

	ip, ua := client.Normalized()
	row := access.AttemptLog{
		ID:           id,
		AccessCodeID: codeID,
		Success:      success,
		Reason:       reason,
		PhoneNumber:  phone,
		Channel:      ch,
		IPAddress:    ip,
		UserAgent:    ua,
		CreatedAt:    now,
	}

	if err := s.store.InsertAttempt(ctx, row); err != nil {
		s.log.ErrorContext(ctx, "auth.audit.insert.fail", "reason", string(reason), "err", err)
	}
	if err := s.events.Publish(ctx, audit.FromAttempt(row)); err != nil {
		s.log.WarnContext(ctx, "auth.audit.publish.fail", "reason", string(reason), "err", err)
	}
	if s.recorder != nil {
		s.recorder.ObserveAttempt(string(reason), success)
	}
}

func unauthorized(op, msg string) error {
	return access.OpError{Op: op, Kind: access.ErrUnauthorized, Msg: msg}
}
