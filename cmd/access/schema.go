package access

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaSQL returns the DDL for the access tables inside schema.
// Statements are idempotent so ApplySchema can run on every start.
func SchemaSQL(schema string) string {
	s := pgx1(schema)
	codes := pgIdent(schema, "access_codes")
	sessions := pgIdent(schema, "auth_sessions")
	attempts := pgIdent(schema, "auth_attempt_logs")

	return fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[2]s (
  id TEXT PRIMARY KEY,
  code_hash TEXT NOT NULL,
  phone_number VARCHAR(20) NOT NULL,
  channel VARCHAR(16) NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  max_attempts INT NOT NULL,
  attempt_count INT NOT NULL DEFAULT 0,
  used BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  used_at TIMESTAMPTZ NULL,

  CONSTRAINT chk_access_codes_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_access_codes_channel CHECK (channel IN ('KAKAO', 'PASS')),
  CONSTRAINT chk_access_codes_max_attempts CHECK (max_attempts > 0),
  CONSTRAINT chk_access_codes_attempts CHECK (attempt_count >= 0 AND attempt_count <= max_attempts)
);

CREATE INDEX IF NOT EXISTS idx_access_codes_lookup
  ON %[2]s (phone_number, channel, used, expires_at);
CREATE INDEX IF NOT EXISTS idx_access_codes_phone_created
  ON %[2]s (phone_number, created_at);
CREATE INDEX IF NOT EXISTS idx_access_codes_created
  ON %[2]s (created_at DESC);

CREATE TABLE IF NOT EXISTS %[3]s (
  id TEXT PRIMARY KEY,
  access_code_id TEXT NOT NULL REFERENCES %[2]s(id),
  token_hash CHAR(64) NOT NULL,
  ip_address VARCHAR(64) NULL,
  user_agent VARCHAR(400) NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  revoked_at TIMESTAMPTZ NULL,

  CONSTRAINT uq_auth_sessions_token_hash UNIQUE (token_hash)
);

CREATE INDEX IF NOT EXISTS idx_auth_sessions_active
  ON %[3]s (revoked_at, expires_at);

CREATE TABLE IF NOT EXISTS %[4]s (
  id TEXT PRIMARY KEY,
  access_code_id TEXT NULL REFERENCES %[2]s(id),
  success BOOLEAN NOT NULL,
  reason VARCHAR(32) NOT NULL,
  phone_number VARCHAR(20) NOT NULL,
  channel VARCHAR(16) NOT NULL,
  ip_address VARCHAR(64) NULL,
  user_agent VARCHAR(400) NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_auth_attempt_logs_created
  ON %[4]s (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_auth_attempt_logs_success_reason
  ON %[4]s (success, reason);
`, s, codes, sessions, attempts)
}

// ApplySchema creates the access tables if they do not exist.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if pool == nil {
		return fmt.Errorf("access: nil pool")
	}
	if !pgIdentIsValid(schema) {
		return fmt.Errorf("access: invalid schema identifier")
	}
	_, err := pool.Exec(ctx, SchemaSQL(schema))
	return err
}
