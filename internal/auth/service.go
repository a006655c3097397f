package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/secure/precis"

	"github.com/coursebook-app/coursebook/internal/notify"
	"github.com/coursebook-app/coursebook/internal/observability"
	"github.com/coursebook-app/coursebook/internal/shared"
)

// Config carries the auth tunables.
type Config struct {
	// AllowedEmailDomains is the registration allow-list.
	AllowedEmailDomains []string
	// MaxFailedLogins is the lockout threshold.
	MaxFailedLogins int
	// CodeTTL bounds verification codes (registration, 2FA, reactivation).
	CodeTTL time.Duration
	// ResetTTL bounds password reset tokens.
	ResetTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxFailedLogins <= 0 {
		c.MaxFailedLogins = DefaultLockoutThreshold
	}
	if c.CodeTTL <= 0 {
		c.CodeTTL = 3 * time.Minute
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = 3 * time.Minute
	}
	return c
}

// RegisterInput is the data required to create an account.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// LoginResult is the outcome of a login attempt. Identity is set only
// for OutcomeSuccess.
type LoginResult struct {
	Outcome  Outcome
	Identity *shared.Identity
}

// Service owns the account state machine. It is stateless between
// calls; all durable state lives behind the Repository.
type Service struct {
	repo     Repository
	notifier notify.Notifier
	hasher   *Hasher
	codes    CodeGenerator
	lockout  LockoutPolicy
	audit    *shared.AuditLogger
	metrics  *observability.Metrics
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewService constructs the auth engine. Audit and metrics are
// optional.
func NewService(repo Repository, notifier notify.Notifier, hasher *Hasher, audit *shared.AuditLogger, metrics *observability.Metrics, logger *slog.Logger, cfg Config) *Service {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		hasher:   hasher,
		lockout:  NewLockoutPolicy(cfg.MaxFailedLogins),
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock overrides the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a PENDING account and emails a verification code.
func (s *Service) Register(ctx context.Context, in RegisterInput) error {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if in.Password == "" {
		return fmt.Errorf("%w: password required", shared.ErrValidation)
	}
	if !s.domainAllowed(email) {
		return shared.ErrDomainNotAllowed
	}
	username, err := normalizeUsername(in.Username)
	if err != nil {
		return fmt.Errorf("%w: invalid username", shared.ErrValidation)
	}

	now := s.now()

	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Status != StatusPending {
			return shared.ErrEmailTaken
		}
		if !existing.VerificationExpired(now) {
			return shared.ErrRegistrationPending
		}
		// The earlier attempt lapsed; make room for a fresh one.
		if err := s.repo.Delete(ctx, existing.ID); err != nil {
			return fmt.Errorf("auth: delete expired registration: %w", err)
		}
	case errors.Is(err, shared.ErrNotFound):
		// fresh registration
	default:
		return fmt.Errorf("auth: lookup email: %w", err)
	}

	byUsername, err := s.repo.FindByUsername(ctx, username)
	switch {
	case err == nil:
		if byUsername.Status != StatusPending {
			return shared.ErrUsernameTaken
		}
	case errors.Is(err, shared.ErrNotFound):
	default:
		return fmt.Errorf("auth: lookup username: %w", err)
	}

	salt, err := s.codes.NewSalt()
	if err != nil {
		return err
	}
	code, err := s.codes.NumericCode()
	if err != nil {
		return err
	}

	account := &Account{
		FirstName:           in.FirstName,
		LastName:            in.LastName,
		Username:            username,
		Email:               email,
		Salt:                salt,
		PasswordHash:        s.hasher.Hash(in.Password, salt),
		Role:                "USER",
		Status:              StatusPending,
		VerificationCode:    code,
		VerificationExpires: now.Add(s.cfg.CodeTTL),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return err
	}

	s.metrics.CountCodeIssued(string(notify.PurposeRegistration))
	s.sendCode(ctx, account.Email, code, notify.PurposeRegistration)
	s.record(ctx, account.ID, shared.AuditActionRegister, map[string]any{"email": account.Email})
	return nil
}

// VerifyEmail consumes the outstanding verification code. A match
// activates the account, whether it was PENDING or SUSPENDED.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (bool, error) {
	account, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if account.Status == StatusBanned {
		// No engine path out of BANNED.
		return false, nil
	}

	if !s.consumeChallenge(account, code) {
		return false, nil
	}

	wasSuspended := account.Status == StatusSuspended
	account.EmailVerified = true
	account.Status = StatusActive
	if wasSuspended {
		account.FailedLogins = 0
	}
	if err := s.repo.Update(ctx, account); err != nil {
		return false, err
	}
	s.record(ctx, account.ID, shared.AuditActionVerified, map[string]any{"reactivated": wasSuspended})
	return true, nil
}

// Login checks credentials against the account state machine.
func (s *Service) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	result, err := s.login(ctx, identifier, password)
	if err == nil {
		s.metrics.CountLogin(string(result.Outcome))
	}
	return result, err
}

func (s *Service) login(ctx context.Context, identifier, password string) (LoginResult, error) {
	invalid := LoginResult{Outcome: OutcomeInvalid}

	identifier = strings.TrimSpace(identifier)
	if !strings.ContainsRune(identifier, '@') {
		// Usernames are stored case-mapped, so the lookup has to use the
		// same canonical form.
		normalized, err := normalizeUsername(identifier)
		if err != nil {
			return invalid, nil
		}
		identifier = normalized
	}

	account, err := s.repo.FindByEmailOrUsername(ctx, identifier)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return invalid, nil
		}
		return invalid, err
	}

	now := s.now()

	switch account.Status {
	case StatusBanned:
		// The password is deliberately not checked and the counter not
		// touched; a banned caller learns nothing about the credential.
		return LoginResult{Outcome: OutcomeBanned}, nil
	case StatusSuspended:
		// Password checks are off while suspended. Reissue the
		// reactivation code if the previous one lapsed.
		if account.VerificationExpired(now) {
			if err := s.issueChallenge(ctx, account, notify.PurposeReverification); err != nil {
				return invalid, err
			}
		}
		return LoginResult{Outcome: OutcomeSuspended}, nil
	case StatusActive:
		// proceed to credential check
	default:
		// PENDING and administrative states fold into the generic
		// invalid outcome so existence is not leaked.
		return invalid, nil
	}

	if !s.hasher.Verify(password, account.Salt, account.PasswordHash) {
		count, err := s.repo.RecordFailedLogin(ctx, account.ID)
		if err != nil {
			return invalid, err
		}
		s.record(ctx, account.ID, shared.AuditActionLoginFailure, map[string]any{"failed_logins": count})
		if s.lockout.ShouldSuspend(count, account.Status) {
			account.FailedLogins = count
			account.Status = StatusSuspended
			if err := s.issueChallenge(ctx, account, notify.PurposeReverification); err != nil {
				return invalid, err
			}
			s.metrics.CountLockout()
			s.record(ctx, account.ID, shared.AuditActionLockout, nil)
		}
		return invalid, nil
	}

	account.FailedLogins = 0
	account.LastLoginAt = now

	if account.TwoFactorEnabled {
		if err := s.issueChallenge(ctx, account, notify.PurposeTwoFactor); err != nil {
			return invalid, err
		}
		return LoginResult{Outcome: OutcomeTwoFactorRequired}, nil
	}

	if err := s.repo.Update(ctx, account); err != nil {
		return invalid, err
	}
	s.record(ctx, account.ID, shared.AuditActionLoginSuccess, nil)
	return LoginResult{
		Outcome:  OutcomeSuccess,
		Identity: &shared.Identity{AccountID: account.ID, Username: account.Username, Role: account.Role},
	}, nil
}

// VerifyTwoFactor consumes the outstanding 2FA code. It never changes
// the account status; establishing the session is the caller's job.
func (s *Service) VerifyTwoFactor(ctx context.Context, email, code string) (bool, error) {
	account, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if account.Status != StatusActive {
		return false, nil
	}

	if !s.consumeChallenge(account, code) {
		return false, nil
	}
	if err := s.repo.Update(ctx, account); err != nil {
		return false, err
	}
	s.record(ctx, account.ID, shared.AuditActionLoginSuccess, map[string]any{"two_factor": true})
	return true, nil
}

// RequestPasswordReset issues a reset token unless an unexpired one is
// already outstanding.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return err
	}

	now := s.now()
	if account.ResetPending(now) {
		return shared.ErrResetPending
	}

	token, err := s.codes.ResetToken()
	if err != nil {
		return err
	}
	account.ResetToken = token
	account.ResetExpires = now.Add(s.cfg.ResetTTL)
	account.ResetUsed = false
	if err := s.repo.Update(ctx, account); err != nil {
		return err
	}

	s.metrics.CountCodeIssued(string(notify.PurposeReset))
	s.sendCode(ctx, account.Email, token, notify.PurposeReset)
	return nil
}

// SubmitPasswordReset replaces the password identified by a live reset
// token. The failed-attempt counter and any SUSPENDED status are left
// untouched.
func (s *Service) SubmitPasswordReset(ctx context.Context, token, newPassword string) (bool, error) {
	if token == "" || newPassword == "" {
		return false, nil
	}
	account, err := s.repo.FindByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	now := s.now()
	if account.ResetUsed || !now.Before(account.ResetExpires) {
		return false, nil
	}

	salt, err := s.codes.NewSalt()
	if err != nil {
		return false, err
	}
	account.Salt = salt
	account.PasswordHash = s.hasher.Hash(newPassword, salt)
	account.ResetToken = ""
	account.ResetExpires = time.Time{}
	account.ResetUsed = true
	if err := s.repo.Update(ctx, account); err != nil {
		return false, err
	}
	s.record(ctx, account.ID, shared.AuditActionPasswordReset, nil)
	return true, nil
}

// IdentityByEmail resolves the session identity after an out-of-band
// verification step (2FA completion).
func (s *Service) IdentityByEmail(ctx context.Context, email string) (*shared.Identity, error) {
	account, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	return &shared.Identity{AccountID: account.ID, Username: account.Username, Role: account.Role}, nil
}

// RegisterSession persists the session audit row.
func (s *Service) RegisterSession(ctx context.Context, id string, accountID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, accountID, expiresAt, ip, ua)
}

// RemoveSession deletes a session audit row.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// consumeChallenge checks code match and expiry and clears the slot on
// success. Mismatch and expiry are indistinguishable to the caller.
func (s *Service) consumeChallenge(account *Account, code string) bool {
	if code == "" || account.VerificationCode == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(account.VerificationCode), []byte(code)) != 1 {
		return false
	}
	if !s.now().Before(account.VerificationExpires) {
		return false
	}
	account.VerificationCode = ""
	account.VerificationExpires = time.Time{}
	return true
}

// issueChallenge overwrites the verification slot with a fresh code,
// persists the account and emails the code. Any prior unconsumed
// challenge is invalidated by the overwrite.
func (s *Service) issueChallenge(ctx context.Context, account *Account, purpose notify.Purpose) error {
	code, err := s.codes.NumericCode()
	if err != nil {
		return err
	}
	account.VerificationCode = code
	account.VerificationExpires = s.now().Add(s.cfg.CodeTTL)
	if err := s.repo.Update(ctx, account); err != nil {
		return err
	}
	s.metrics.CountCodeIssued(string(purpose))
	s.sendCode(ctx, account.Email, code, purpose)
	return nil
}

// sendCode is fire-and-forget: the persisted account state is the
// source of truth, the email is best-effort.
func (s *Service) sendCode(ctx context.Context, email, code string, purpose notify.Purpose) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendCode(ctx, email, code, purpose); err != nil {
		s.logger.Warn("send verification code",
			slog.String("purpose", string(purpose)),
			slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, accountID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.UserLog{AccountID: accountID, Action: action, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) domainAllowed(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	for _, allowed := range s.cfg.AllowedEmailDomains {
		if strings.EqualFold(domain, allowed) {
			return true
		}
	}
	return false
}

func normalizeUsername(username string) (string, error) {
	return precis.UsernameCaseMapped.String(strings.TrimSpace(username))
}
