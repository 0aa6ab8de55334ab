package access

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"accessgate/cmd/access/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements access persistence over PostgreSQL.
//
// Design notes:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Schema/table identifiers are quoted via pgx.Identifier.
//   - CreateCode serializes per phone number with a transaction-scoped advisory lock,
//     so the window count and the insert cannot interleave with another request.
//   - SwapCode/RedeemCode are compare-and-swap updates on (attempt_count, used).
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultSchema is the Postgres schema used when none is configured.
const DefaultSchema = "accessgate"

// WithSchema sets the Postgres schema used by the store (default "accessgate").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("access: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("access: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: DefaultSchema,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("access: nil pool")
	}
	return st, nil
}

// Schema returns the schema the store reads and writes.
func (s *PostgresStore) Schema() string { return s.schema }

const codeColumns = `id, code_hash, phone_number, channel, expires_at, max_attempts, attempt_count, used, created_at, used_at`

// CreateCode implements Store.
func (s *PostgresStore) CreateCode(ctx context.Context, in CreateCodeInput) (AccessCode, error) {
	const op = "access.CreateCode"

	if err := ctx.Err(); err != nil {
		return AccessCode{}, err
	}
	c := in.Code
	if strings.TrimSpace(c.PhoneNumber) == "" || c.CodeHash == "" {
		return AccessCode{}, invalid(op, "missing phone number or code hash")
	}
	if !c.Channel.Valid() {
		return AccessCode{}, invalid(op, "unsupported channel")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.ID == "" {
		id, err := NewID(c.CreatedAt)
		if err != nil {
			return AccessCode{}, err
		}
		c.ID = id
	}

	codes := pgIdent(s.schema, "access_codes")

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return AccessCode{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if in.WindowMax > 0 {
		// Per-phone mutex for the rest of the transaction.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, s.schema+":"+c.PhoneNumber); err != nil {
			return AccessCode{}, err
		}

		var n int
		err := tx.QueryRow(ctx,
			`SELECT count(*)
			   FROM `+codes+`
			  WHERE phone_number = $1
			    AND created_at > $2`,
			c.PhoneNumber, in.WindowStart,
		).Scan(&n)
		if err != nil {
			return AccessCode{}, err
		}
		if n >= in.WindowMax {
			return AccessCode{}, OpError{Op: op, Kind: ErrTooManyRequests, Msg: "hourly code cap reached"}
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+codes+` (`+codeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.CodeHash, c.PhoneNumber, string(c.Channel), c.ExpiresAt,
		c.MaxAttempts, c.AttemptCount, c.Used, c.CreatedAt, c.UsedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return AccessCode{}, ConflictError{Op: op, Field: field}
		}
		return AccessCode{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return AccessCode{}, err
	}
	return c, nil
}

// CountCodesSince implements Store.
func (s *PostgresStore) CountCodesSince(ctx context.Context, phone string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*)
		   FROM `+pgIdent(s.schema, "access_codes")+`
		  WHERE phone_number = $1
		    AND created_at > $2`,
		phone, since,
	).Scan(&n)
	return n, err
}

// LatestAvailableCode implements Store.
func (s *PostgresStore) LatestAvailableCode(ctx context.Context, phone string, channel Channel, now time.Time) (AccessCode, error) {
	codes := pgIdent(s.schema, "access_codes")

	row := s.pool.QueryRow(ctx,
		`SELECT `+codeColumns+`
		   FROM `+codes+`
		  WHERE phone_number = $1
		    AND channel = $2
		    AND used = false
		    AND expires_at > $3
		  ORDER BY created_at DESC, id DESC
		  LIMIT 1`,
		phone, string(channel), now,
	)
	c, err := scanCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccessCode{}, ErrNotFound
		}
		return AccessCode{}, err
	}
	return c, nil
}

// GetCode implements Store.
func (s *PostgresStore) GetCode(ctx context.Context, id string) (AccessCode, error) {
	if !ids.Valid(id) {
		return AccessCode{}, ErrNotFound
	}
	codes := pgIdent(s.schema, "access_codes")

	c, err := scanCode(s.pool.QueryRow(ctx, `SELECT `+codeColumns+` FROM `+codes+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccessCode{}, ErrNotFound
		}
		return AccessCode{}, err
	}
	return c, nil
}

// SwapCode implements Store.
func (s *PostgresStore) SwapCode(ctx context.Context, prev, next AccessCode) error {
	return swapCode(ctx, s.pool, s.schema, "access.SwapCode", prev, next)
}

// RedeemCode implements Store.
func (s *PostgresStore) RedeemCode(ctx context.Context, prev, next AccessCode, sess Session) error {
	const op = "access.RedeemCode"

	if sess.TokenHash == "" {
		return invalid(op, "missing token hash")
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	if sess.ID == "" {
		id, err := NewID(sess.CreatedAt)
		if err != nil {
			return err
		}
		sess.ID = id
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := swapCode(ctx, tx, s.schema, op, prev, next); err != nil {
		return err
	}

	sessions := pgIdent(s.schema, "auth_sessions")
	_, err = tx.Exec(ctx,
		`INSERT INTO `+sessions+` (
		     id, access_code_id, token_hash, ip_address, user_agent, expires_at, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, next.ID, sess.TokenHash, sess.IPAddress, sess.UserAgent, sess.ExpiresAt, sess.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		if pgIsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return err
	}

	return tx.Commit(ctx)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func swapCode(ctx context.Context, db execer, schema, op string, prev, next AccessCode) error {
	if next.ID != prev.ID || prev.ID == "" {
		return invalid(op, "code id mismatch")
	}

	codes := pgIdent(schema, "access_codes")

	ct, err := db.Exec(ctx,
		`UPDATE `+codes+`
		    SET attempt_count = $1,
		        used = $2,
		        used_at = $3
		  WHERE id = $4
		    AND attempt_count = $5
		    AND used = $6`,
		next.AttemptCount, next.Used, next.UsedAt, prev.ID, prev.AttemptCount, prev.Used,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ConflictError{Op: op, Field: "access_code"}
	}
	return nil
}

// ActiveSessionByTokenHash implements Store.
func (s *PostgresStore) ActiveSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (Session, error) {
	sessions := pgIdent(s.schema, "auth_sessions")

	var out Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, access_code_id, token_hash, ip_address, user_agent, expires_at, created_at, revoked_at
		   FROM `+sessions+`
		  WHERE token_hash = $1
		    AND revoked_at IS NULL
		    AND expires_at > $2`,
		tokenHash, now,
	).Scan(
		&out.ID,
		&out.AccessCodeID,
		&out.TokenHash,
		&out.IPAddress,
		&out.UserAgent,
		&out.ExpiresAt,
		&out.CreatedAt,
		&out.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return out, nil
}

// RevokeSessionByTokenHash implements Store.
func (s *PostgresStore) RevokeSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	sessions := pgIdent(s.schema, "auth_sessions")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+sessions+`
		    SET revoked_at = $1
		  WHERE token_hash = $2
		    AND revoked_at IS NULL`,
		now, tokenHash,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// InsertAttempt implements Store.
func (s *PostgresStore) InsertAttempt(ctx context.Context, a AttemptLog) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.ID == "" {
		id, err := NewID(a.CreatedAt)
		if err != nil {
			return err
		}
		a.ID = id
	}

	attempts := pgIdent(s.schema, "auth_attempt_logs")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+attempts+` (
		     id, access_code_id, success, reason, phone_number, channel, ip_address, user_agent, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.AccessCodeID, a.Success, string(a.Reason), a.PhoneNumber, string(a.Channel),
		a.IPAddress, a.UserAgent, a.CreatedAt,
	)
	return err
}

// RecentCodes implements Store.
func (s *PostgresStore) RecentCodes(ctx context.Context, limit int) ([]AccessCode, error) {
	if limit <= 0 {
		return nil, nil
	}

	codes := pgIdent(s.schema, "access_codes")

	rows, err := s.pool.Query(ctx,
		`SELECT `+codeColumns+`
		   FROM `+codes+`
		  ORDER BY created_at DESC, id DESC
		  LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AccessCode, 0, limit)
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- helpers ----

func scanCode(row pgx.Row) (AccessCode, error) {
	var (
		c       AccessCode
		channel string
	)
	err := row.Scan(
		&c.ID,
		&c.CodeHash,
		&c.PhoneNumber,
		&channel,
		&c.ExpiresAt,
		&c.MaxAttempts,
		&c.AttemptCount,
		&c.Used,
		&c.CreatedAt,
		&c.UsedAt,
	)
	if err != nil {
		return AccessCode{}, err
	}
	c.Channel = Channel(channel)
	return c, nil
}

// pgIdentIsValid checks if a string is a safe Postgres identifier.
func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgx1(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_auth_sessions_token_hash", strings.Contains(c, "token_hash"):
		return "token_hash", true
	case strings.HasSuffix(c, "_pkey"):
		return "id", true
	default:
		return "unique", true
	}
}
