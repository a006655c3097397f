package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coursebook-app/coursebook/internal/notify"
	"github.com/coursebook-app/coursebook/internal/shared"
)

const (
	statusActive = "ACTIVE"
	statusBanned = "BANNED"

	roleAdmin = "ADMIN"
)

// SessionRevoker invalidates live sessions for an account.
type SessionRevoker interface {
	RevokeAccount(ctx context.Context, accountID int64) error
}

// Service handles account administration.
type Service struct {
	repo     RepositoryPort
	notifier notify.Notifier
	sessions SessionRevoker
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, notifier notify.Notifier, sessions SessionRevoker, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, sessions: sessions, audit: audit, logger: logger}
}

// List returns one page of accounts plus pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]AccountSummary, shared.Pagination, error) {
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	accounts, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return accounts, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Get returns a single account summary.
func (s *Service) Get(ctx context.Context, id int64) (*AccountSummary, error) {
	return s.repo.FindByID(ctx, id)
}

// Ban moves the account to BANNED, revokes its sessions and notifies
// the owner. Administrator accounts cannot be banned.
func (s *Service) Ban(ctx context.Context, id int64, reason string) error {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if account.Role == roleAdmin {
		return fmt.Errorf("%w: administrator accounts cannot be banned", shared.ErrValidation)
	}
	if account.Status == statusBanned {
		return nil
	}

	if err := s.repo.SetStatus(ctx, id, statusBanned, false); err != nil {
		return err
	}
	if err := s.sessions.RevokeAccount(ctx, id); err != nil {
		s.logger.Warn("revoke sessions", slog.Int64("account_id", id), slog.Any("error", err))
	}
	if err := s.repo.DeleteSessions(ctx, id); err != nil {
		s.logger.Warn("delete session records", slog.Int64("account_id", id), slog.Any("error", err))
	}
	if err := s.notifier.SendBanNotice(ctx, account.Email, reason); err != nil {
		s.logger.Warn("send ban notice", slog.Int64("account_id", id), slog.Any("error", err))
	}
	s.record(ctx, id, shared.AuditActionBan, map[string]any{"reason": reason})
	return nil
}

// Unban restores a BANNED account to ACTIVE and clears its failed-login
// counter so the owner can sign in immediately.
func (s *Service) Unban(ctx context.Context, id int64) error {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if account.Status != statusBanned {
		return fmt.Errorf("%w: account is not banned", shared.ErrValidation)
	}

	if err := s.repo.SetStatus(ctx, id, statusActive, true); err != nil {
		return err
	}
	s.record(ctx, id, shared.AuditActionUnban, nil)
	return nil
}

func (s *Service) record(ctx context.Context, accountID int64, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.UserLog{AccountID: accountID, Action: action, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
