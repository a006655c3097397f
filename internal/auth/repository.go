package auth

import (
	"context"
	"time"
)

// Repository defines persistence operations for the auth module. The
// repository owns the Account rows; implementations must make each
// write last-writer-aware per account so concurrent operations on the
// same account do not lose updates.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmailOrUsername(ctx context.Context, identifier string) (*Account, error)
	FindByResetToken(ctx context.Context, token string) (*Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	Create(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error
	Delete(ctx context.Context, id int64) error

	// RecordFailedLogin atomically increments the failed-attempt counter
	// and returns the new value, so two concurrent wrong passwords are
	// both counted.
	RecordFailedLogin(ctx context.Context, id int64) (int, error)

	// Session audit rows; the live session registry is Redis.
	CreateSession(ctx context.Context, id string, accountID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}
