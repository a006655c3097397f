package auth

import "time"

// Status is the coarse lifecycle state of an account.
type Status string

const (
	// StatusPending is a freshly registered account awaiting email verification.
	StatusPending Status = "PENDING"
	// StatusActive is a verified account in good standing.
	StatusActive Status = "ACTIVE"
	// StatusSuspended is a lockout-inflicted state; re-verification restores ACTIVE.
	StatusSuspended Status = "SUSPENDED"
	// StatusBanned is set administratively; there is no engine path out of it.
	StatusBanned Status = "BANNED"
	// StatusInactive and StatusDeleted are administrative states the
	// engine reads but never assigns.
	StatusInactive Status = "INACTIVE"
	StatusDeleted  Status = "DELETED"
)

// Outcome classifies the result of a login attempt.
type Outcome string

const (
	// OutcomeSuccess means credentials checked out and a session may be established.
	OutcomeSuccess Outcome = "success"
	// OutcomeTwoFactorRequired means the password was correct and a code was emailed.
	OutcomeTwoFactorRequired Outcome = "two_factor_required"
	// OutcomeInvalid covers unknown identifiers, wrong passwords and
	// unverified accounts alike, so callers cannot probe for existence.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeBanned means the account is administratively banned.
	OutcomeBanned Outcome = "banned"
	// OutcomeSuspended means the account is locked out pending re-verification.
	OutcomeSuspended Outcome = "suspended_pending_verification"
)

// Account is the persistent state of a user identity. It is owned by
// the repository; the engine holds it for a single request only and
// persists every mutation before returning.
type Account struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	Email     string

	PasswordHash string
	Salt         string

	Role   string
	Status Status

	TwoFactorEnabled bool
	EmailVerified    bool

	// Verification slot: one outstanding (code, expiry) challenge at a
	// time, shared by registration, 2FA and lockout recovery. Issuing a
	// new challenge overwrites any prior unconsumed one.
	VerificationCode    string
	VerificationExpires time.Time

	// Password-reset slot, independent of the verification slot.
	ResetToken   string
	ResetExpires time.Time
	ResetUsed    bool

	FailedLogins int
	LastFailedAt time.Time

	CreatedAt   time.Time
	LastLoginAt time.Time
}

// VerificationExpired reports whether the outstanding challenge, if
// any, has lapsed. Expiry is strict: a code is valid only while
// now < expiry.
func (a *Account) VerificationExpired(now time.Time) bool {
	return a.VerificationCode == "" || !now.Before(a.VerificationExpires)
}

// ResetPending reports whether an unexpired, unconsumed reset token is
// outstanding.
func (a *Account) ResetPending(now time.Time) bool {
	return a.ResetToken != "" && !a.ResetUsed && now.Before(a.ResetExpires)
}
