package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursebook-app/coursebook/internal/platform/db"
	"github.com/coursebook-app/coursebook/internal/shared"
)

const accountColumns = `id, first_name, last_name, username, email, password_hash, salt, role, status,
	two_factor_enabled, email_verified, verification_code, verification_expires,
	reset_token, reset_expires, reset_used, failed_logins, last_failed_at, created_at, last_login_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByID fetches an account by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// FindByEmail fetches an account by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`, email)
}

// FindByUsername fetches an account by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
}

// FindByEmailOrUsername resolves a login identifier.
func (r *PGRepository) FindByEmailOrUsername(ctx context.Context, identifier string) (*Account, error) {
	return r.findOne(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1) OR username = $1`,
		identifier)
}

// FindByResetToken fetches the account holding an outstanding reset token.
func (r *PGRepository) FindByResetToken(ctx context.Context, token string) (*Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE reset_token = $1`, token)
}

// ExistsByEmail reports whether any account uses the email.
func (r *PGRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE LOWER(email) = LOWER($1))`, email).Scan(&exists)
	return exists, err
}

// ExistsByUsername reports whether any account uses the username.
func (r *PGRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`, username).Scan(&exists)
	return exists, err
}

// Create inserts the account and fills its ID and creation time.
func (r *PGRepository) Create(ctx context.Context, account *Account) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (first_name, last_name, username, email, password_hash, salt, role, status,
			two_factor_enabled, email_verified, verification_code, verification_expires,
			reset_token, reset_expires, reset_used, failed_logins, last_failed_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at`,
		account.FirstName, account.LastName, account.Username, account.Email,
		account.PasswordHash, account.Salt, account.Role, string(account.Status),
		account.TwoFactorEnabled, account.EmailVerified,
		nullString(account.VerificationCode), nullTime(account.VerificationExpires),
		nullString(account.ResetToken), nullTime(account.ResetExpires), account.ResetUsed,
		account.FailedLogins, nullTime(account.LastFailedAt), nullTime(account.LastLoginAt),
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return mapConstraint(err)
	}
	return nil
}

// Update writes the full mutable state of the account row.
func (r *PGRepository) Update(ctx context.Context, account *Account) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET
			first_name = $2, last_name = $3, username = $4, email = $5,
			password_hash = $6, salt = $7, role = $8, status = $9,
			two_factor_enabled = $10, email_verified = $11,
			verification_code = $12, verification_expires = $13,
			reset_token = $14, reset_expires = $15, reset_used = $16,
			failed_logins = $17, last_failed_at = $18, last_login_at = $19
		WHERE id = $1`,
		account.ID,
		account.FirstName, account.LastName, account.Username, account.Email,
		account.PasswordHash, account.Salt, account.Role, string(account.Status),
		account.TwoFactorEnabled, account.EmailVerified,
		nullString(account.VerificationCode), nullTime(account.VerificationExpires),
		nullString(account.ResetToken), nullTime(account.ResetExpires), account.ResetUsed,
		account.FailedLogins, nullTime(account.LastFailedAt), nullTime(account.LastLoginAt),
	)
	if err != nil {
		return mapConstraint(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the account row.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}

// RecordFailedLogin increments the failed-attempt counter in place and
// returns the new value.
func (r *PGRepository) RecordFailedLogin(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET failed_logins = failed_logins + 1, last_failed_at = NOW()
		WHERE id = $1
		RETURNING failed_logins`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return count, nil
}

// CreateSession records a login session for auditing. An account holds
// one live session at a time, so any prior row is displaced in the same
// transaction.
func (r *PGRepository) CreateSession(ctx context.Context, id string, accountID int64, expiresAt time.Time, ip, ua string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM account_sessions WHERE account_id = $1`, accountID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO account_sessions (id, account_id, expires_at, ip, ua) VALUES ($1, $2, $3, $4, $5)`,
			id, accountID, expiresAt.UTC(), nullString(ip), nullString(ua))
		return err
	})
}

// DeleteSession removes a session audit row.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM account_sessions WHERE id = $1`, id)
	return err
}

func (r *PGRepository) findOne(ctx context.Context, query string, arg any) (*Account, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("auth: query account: %w", err)
	}
	return account, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		account      Account
		status       string
		verifyCode   *string
		verifyExp    *time.Time
		resetToken   *string
		resetExp     *time.Time
		lastFailedAt *time.Time
		lastLoginAt  *time.Time
	)
	err := row.Scan(
		&account.ID, &account.FirstName, &account.LastName, &account.Username, &account.Email,
		&account.PasswordHash, &account.Salt, &account.Role, &status,
		&account.TwoFactorEnabled, &account.EmailVerified,
		&verifyCode, &verifyExp,
		&resetToken, &resetExp, &account.ResetUsed,
		&account.FailedLogins, &lastFailedAt, &account.CreatedAt, &lastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	account.Status = Status(status)
	if verifyCode != nil {
		account.VerificationCode = *verifyCode
	}
	if verifyExp != nil {
		account.VerificationExpires = *verifyExp
	}
	if resetToken != nil {
		account.ResetToken = *resetToken
	}
	if resetExp != nil {
		account.ResetExpires = *resetExp
	}
	if lastFailedAt != nil {
		account.LastFailedAt = *lastFailedAt
	}
	if lastLoginAt != nil {
		account.LastLoginAt = *lastLoginAt
	}
	return &account, nil
}

func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "uq_accounts_email":
			return shared.ErrEmailTaken
		case "uq_accounts_username":
			return shared.ErrUsernameTaken
		}
	}
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

var _ Repository = (*PGRepository)(nil)
