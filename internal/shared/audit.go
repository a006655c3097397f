package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions recorded by the auth and admin flows.
const (
	AuditActionRegister      = "account.register"
	AuditActionLoginSuccess  = "account.login"
	AuditActionLoginFailure  = "account.login_failed"
	AuditActionLockout       = "account.lockout"
	AuditActionVerified      = "account.verified"
	AuditActionPasswordReset = "account.password_reset"
	AuditActionBan           = "account.ban"
	AuditActionUnban         = "account.unban"
)

// UserLog represents a record stored in user_log.
type UserLog struct {
	AccountID int64
	Action    string
	Meta      map[string]any
	At        time.Time
}

// AuditLogger writes records into user_log. Recording is best-effort:
// callers log the returned error and carry on.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log UserLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" {
		return errors.New("audit log requires an action")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO user_log (account_id, action, meta, occurred_at) VALUES ($1, $2, $3, COALESCE($4, NOW()))`,
		log.AccountID, log.Action, metaJSON, at)
	return err
}
