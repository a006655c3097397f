package users

import "time"

// AccountSummary is the administrative view of an account.
type AccountSummary struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Role          string     `json:"role"`
	Status        string     `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	FailedLogins  int        `json:"failed_logins"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// ListFilter narrows the account listing.
type ListFilter struct {
	Status  string
	Page    int
	PerPage int
}
