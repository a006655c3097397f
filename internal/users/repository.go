package users

import "context"

// RepositoryPort defines data access methods for account administration.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]AccountSummary, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
	FindByID(ctx context.Context, id int64) (*AccountSummary, error)
	// SetStatus moves the account to the given status. When clearFailures
	// is true the failed-login counter is reset in the same statement.
	SetStatus(ctx context.Context, id int64, status string, clearFailures bool) error
	// DeleteSessions removes all recorded sessions for the account.
	DeleteSessions(ctx context.Context, accountID int64) error
}
