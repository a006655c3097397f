package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestSessionManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "test_session", 30*time.Minute, false), mr
}

func commit(t *testing.T, sm *SessionManager, sess *Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, sm.Commit(context.Background(), rec, req, sess))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func requestWithCookie(cookie *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	return req
}

func TestLoadWithoutCookieCreatesAnonymous(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.False(t, sess.Authenticated())
}

func TestCommitThenLoadRoundTrip(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sm.Establish(ctx, sess, Identity{AccountID: 7, Username: "ada", Role: "USER"}))
	sess.Set("theme", "dark")
	cookie := commit(t, sm, sess)

	loaded, err := sm.Load(ctx, requestWithCookie(cookie))
	require.NoError(t, err)
	require.True(t, loaded.Authenticated())
	require.Equal(t, int64(7), loaded.Identity().AccountID)
	require.Equal(t, "ada", loaded.Identity().Username)
	require.Equal(t, "dark", loaded.Get("theme"))
}

func TestEstablishRotatesSessionID(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	cookie := commit(t, sm, sess)
	preLoginID := cookie.Value

	sess, err = sm.Load(ctx, requestWithCookie(cookie))
	require.NoError(t, err)
	require.NoError(t, sm.Establish(ctx, sess, Identity{AccountID: 7, Username: "ada", Role: "USER"}))
	require.NotEqual(t, preLoginID, sess.ID)
	commit(t, sm, sess)

	// The pre-login identifier is dead.
	stale, err := sm.Load(ctx, requestWithCookie(&http.Cookie{Name: sm.CookieName(), Value: preLoginID}))
	require.NoError(t, err)
	require.False(t, stale.Authenticated())
	require.NotEqual(t, preLoginID, stale.ID)
}

func TestSecondLoginDisplacesFirstSession(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	ctx := context.Background()
	id := Identity{AccountID: 7, Username: "ada", Role: "USER"}

	first, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sm.Establish(ctx, first, id))
	firstCookie := commit(t, sm, first)

	second, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sm.Establish(ctx, second, id))
	secondCookie := commit(t, sm, second)

	displaced, err := sm.Load(ctx, requestWithCookie(firstCookie))
	require.NoError(t, err)
	require.False(t, displaced.Authenticated())

	surviving, err := sm.Load(ctx, requestWithCookie(secondCookie))
	require.NoError(t, err)
	require.True(t, surviving.Authenticated())
}

func TestIdleTimeoutExpiresSession(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sm.Establish(ctx, sess, Identity{AccountID: 7, Username: "ada", Role: "USER"}))
	cookie := commit(t, sm, sess)

	mr.FastForward(31 * time.Minute)

	expired, err := sm.Load(ctx, requestWithCookie(cookie))
	require.NoError(t, err)
	require.False(t, expired.Authenticated())
}

func TestCommitSlidesIdleWindow(t *testing.T) {
	sm, mr := newTestSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sm.Establish(ctx, sess, Identity{AccountID: 7, Username: "ada", Role: "USER"}))
	cookie := commit(t, sm, sess)

	// Activity at minute 20 pushes the deadline out.
	mr.FastForward(20 * time.Minute)
	active, err := sm.Load(ctx, requestWithCookie(cookie))
	require.NoError(t, err)
	require.True(t, active.Authenticated())
	commit(t, sm, active)

	mr.FastForward(20 * time.Minute)
	stillActive, err := sm.Load(ctx, requestWithCookie(cookie))
	require.NoError(t, err)
	require.True(t, stillActive.Authenticated())
}

func TestDestroyRemovesSession(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sm.Establish(ctx, sess, Identity{AccountID: 7, Username: "ada", Role: "USER"}))
	cookie := commit(t, sm, sess)

	sess, err = sm.Load(ctx, requestWithCookie(cookie))
	require.NoError(t, err)
	sm.Destroy(sess)

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, requestWithCookie(cookie), sess))
	cleared := rec.Result().Cookies()
	require.NotEmpty(t, cleared)
	require.Equal(t, -1, cleared[0].MaxAge)

	gone, err := sm.Load(ctx, requestWithCookie(cookie))
	require.NoError(t, err)
	require.False(t, gone.Authenticated())
}

func TestRevokeAccountDropsLiveSession(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.NoError(t, sm.Establish(ctx, sess, Identity{AccountID: 7, Username: "ada", Role: "USER"}))
	cookie := commit(t, sm, sess)

	require.NoError(t, sm.RevokeAccount(ctx, 7))

	revoked, err := sm.Load(ctx, requestWithCookie(cookie))
	require.NoError(t, err)
	require.False(t, revoked.Authenticated())

	// Revoking an account with no live session is a no-op.
	require.NoError(t, sm.RevokeAccount(ctx, 99))
}
