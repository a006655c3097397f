package users

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coursebook-app/coursebook/internal/notify"
	"github.com/coursebook-app/coursebook/internal/shared"
)

type memoryUsersRepo struct {
	accounts map[int64]*AccountSummary
	sessions map[int64]int
}

func newMemoryUsersRepo() *memoryUsersRepo {
	return &memoryUsersRepo{
		accounts: make(map[int64]*AccountSummary),
		sessions: make(map[int64]int),
	}
}

func (r *memoryUsersRepo) List(ctx context.Context, filter ListFilter) ([]AccountSummary, error) {
	var out []AccountSummary
	for _, a := range r.accounts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *memoryUsersRepo) Count(ctx context.Context, filter ListFilter) (int, error) {
	out, _ := r.List(ctx, filter)
	return len(out), nil
}

func (r *memoryUsersRepo) FindByID(ctx context.Context, id int64) (*AccountSummary, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (r *memoryUsersRepo) SetStatus(ctx context.Context, id int64, status string, clearFailures bool) error {
	a, ok := r.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.Status = status
	if clearFailures {
		a.FailedLogins = 0
	}
	return nil
}

func (r *memoryUsersRepo) DeleteSessions(ctx context.Context, accountID int64) error {
	r.sessions[accountID] = 0
	return nil
}

type fakeNotifier struct {
	banNotices []string
}

func (n *fakeNotifier) SendCode(ctx context.Context, email, code string, purpose notify.Purpose) error {
	return nil
}

func (n *fakeNotifier) SendBanNotice(ctx context.Context, email, reason string) error {
	n.banNotices = append(n.banNotices, email)
	return nil
}

type fakeRevoker struct {
	revoked []int64
}

func (r *fakeRevoker) RevokeAccount(ctx context.Context, accountID int64) error {
	r.revoked = append(r.revoked, accountID)
	return nil
}

func newUsersFixture() (*Service, *memoryUsersRepo, *fakeNotifier, *fakeRevoker) {
	repo := newMemoryUsersRepo()
	notifier := &fakeNotifier{}
	revoker := &fakeRevoker{}
	service := NewService(repo, notifier, revoker, nil, slog.Default())
	return service, repo, notifier, revoker
}

func seedAccount(repo *memoryUsersRepo, id int64, role, status string) {
	repo.accounts[id] = &AccountSummary{
		ID:        id,
		Email:     "user@sabanciuniv.edu",
		Username:  "user",
		Role:      role,
		Status:    status,
		CreatedAt: time.Now(),
	}
}

func TestBanMovesAccountToBanned(t *testing.T) {
	service, repo, notifier, revoker := newUsersFixture()
	seedAccount(repo, 1, "USER", "ACTIVE")

	require.NoError(t, service.Ban(context.Background(), 1, "abusive reviews"))

	account, err := repo.FindByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "BANNED", account.Status)
	require.Equal(t, []int64{1}, revoker.revoked)
	require.Equal(t, []string{"user@sabanciuniv.edu"}, notifier.banNotices)
}

func TestBanIsIdempotent(t *testing.T) {
	service, repo, notifier, _ := newUsersFixture()
	seedAccount(repo, 1, "USER", "BANNED")

	require.NoError(t, service.Ban(context.Background(), 1, ""))
	require.Empty(t, notifier.banNotices)
}

func TestBanRefusesAdmins(t *testing.T) {
	service, repo, _, _ := newUsersFixture()
	seedAccount(repo, 1, "ADMIN", "ACTIVE")

	err := service.Ban(context.Background(), 1, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestBanUnknownAccount(t *testing.T) {
	service, _, _, _ := newUsersFixture()
	err := service.Ban(context.Background(), 42, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUnbanRestoresActive(t *testing.T) {
	service, repo, _, _ := newUsersFixture()
	seedAccount(repo, 1, "USER", "BANNED")
	repo.accounts[1].FailedLogins = 5

	require.NoError(t, service.Unban(context.Background(), 1))

	account, err := repo.FindByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "ACTIVE", account.Status)
	require.Zero(t, account.FailedLogins)
}

func TestUnbanRequiresBannedState(t *testing.T) {
	service, repo, _, _ := newUsersFixture()
	seedAccount(repo, 1, "USER", "ACTIVE")

	err := service.Unban(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListFiltersByStatus(t *testing.T) {
	service, repo, _, _ := newUsersFixture()
	seedAccount(repo, 1, "USER", "ACTIVE")
	seedAccount(repo, 2, "USER", "BANNED")

	banned, pagination, err := service.List(context.Background(), ListFilter{Status: "BANNED", Page: 1, PerPage: 50})
	require.NoError(t, err)
	require.Len(t, banned, 1)
	require.Equal(t, int64(2), banned[0].ID)
	require.Equal(t, 1, pagination.Total)
	require.Equal(t, 1, pagination.TotalPages)
}
