package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursebook-app/coursebook/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const summaryColumns = `id, email, username, first_name, last_name, role, status,
	email_verified, failed_logins, created_at, last_login_at`

// List returns one page of accounts matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]AccountSummary, error) {
	perPage := filter.PerPage
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	query := `SELECT ` + summaryColumns + ` FROM accounts`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filter.Status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of accounts matching the filter.
func (r *Repository) Count(ctx context.Context, filter ListFilter) (int, error) {
	query := `SELECT COUNT(*) FROM accounts`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filter.Status)
	}
	var total int
	err := r.pool.QueryRow(ctx, query, args...).Scan(&total)
	return total, err
}

// FindByID returns one account summary.
func (r *Repository) FindByID(ctx context.Context, id int64) (*AccountSummary, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+summaryColumns+` FROM accounts WHERE id = $1`, id)
	summary, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// SetStatus updates the account status in a single statement.
func (r *Repository) SetStatus(ctx context.Context, id int64, status string, clearFailures bool) error {
	query := `UPDATE accounts SET status = $2 WHERE id = $1`
	if clearFailures {
		query = `UPDATE accounts SET status = $2, failed_logins = 0, last_failed_at = NULL WHERE id = $1`
	}
	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteSessions removes all recorded sessions for the account.
func (r *Repository) DeleteSessions(ctx context.Context, accountID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM account_sessions WHERE account_id = $1`, accountID)
	return err
}

func scanSummary(row pgx.Row) (AccountSummary, error) {
	var s AccountSummary
	err := row.Scan(
		&s.ID, &s.Email, &s.Username, &s.FirstName, &s.LastName, &s.Role,
		&s.Status, &s.EmailVerified, &s.FailedLogins, &s.CreatedAt, &s.LastLoginAt,
	)
	return s, err
}

var _ RepositoryPort = (*Repository)(nil)
