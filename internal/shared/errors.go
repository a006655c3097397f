package shared

import "errors"

var (
	// ErrNotFound indicates the account or token does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDomainNotAllowed indicates the registration email is outside the allowed domains.
	ErrDomainNotAllowed = errors.New("email domain not allowed")
	// ErrEmailTaken indicates the email already belongs to a registered account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken indicates the username already belongs to a registered account.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrRegistrationPending indicates an unexpired registration already exists for the email.
	ErrRegistrationPending = errors.New("registration pending verification")
	// ErrResetPending indicates an unexpired password reset token already exists.
	ErrResetPending = errors.New("password reset already requested")
	// ErrValidation indicates malformed request input.
	ErrValidation = errors.New("validation failed")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
