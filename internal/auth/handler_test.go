package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/coursebook-app/coursebook/internal/notify"
	"github.com/coursebook-app/coursebook/internal/shared"
)

type handlerFixture struct {
	*fixture
	server   *httptest.Server
	sessions *shared.SessionManager
	client   *http.Client
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newFixture(t)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	sessions := shared.NewSessionManager(redisClient, "test_session", 30*time.Minute, false)
	csrf := shared.NewCSRFManager("test-secret")
	handler := NewHandler(nil, f.service, sessions, csrf)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			ctx := shared.ContextWithSession(req.Context(), sess)
			wrapped := &commitOnWrite{ResponseWriter: w, ctx: ctx, sessions: sessions, sess: sess, req: req}
			next.ServeHTTP(wrapped, req.WithContext(ctx))
			wrapped.commit()
		})
	})
	r.Route("/auth", handler.MountRoutes)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &handlerFixture{
		fixture:  f,
		server:   server,
		sessions: sessions,
		client:   &http.Client{Jar: jar},
	}
}

// commitOnWrite mirrors the application middleware: the session commit
// must land before the first response byte so Set-Cookie is honored.
type commitOnWrite struct {
	http.ResponseWriter
	ctx       context.Context
	sessions  *shared.SessionManager
	sess      *shared.Session
	req       *http.Request
	committed bool
}

func (w *commitOnWrite) commit() {
	if !w.committed {
		w.committed = true
		_ = w.sessions.Commit(w.ctx, w.ResponseWriter, w.req, w.sess)
	}
}

func (w *commitOnWrite) WriteHeader(statusCode int) {
	w.commit()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *commitOnWrite) Write(data []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(data)
}

func (f *handlerFixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := f.client.Post(f.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *handlerFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

const testEmail = "ada@sabanciuniv.edu"

func (f *handlerFixture) registerAndActivate(t *testing.T) {
	t.Helper()
	resp := f.post(t, "/auth/register", map[string]string{
		"email":      testEmail,
		"username":   "ada",
		"password":   "correct horse",
		"first_name": "Ada",
		"last_name":  "Lovelace",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	verify := f.post(t, "/auth/verify-email", map[string]string{
		"email": testEmail,
		"code":  f.notifier.code(notify.PurposeRegistration),
	})
	require.Equal(t, http.StatusOK, verify.StatusCode)
}

func TestRegisterEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	resp := f.post(t, "/auth/register", map[string]string{
		"email":      testEmail,
		"username":   "ada",
		"password":   "correct horse",
		"first_name": "Ada",
		"last_name":  "Lovelace",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	account, err := f.repo.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.Equal(t, StatusPending, account.Status)
}

func TestRegisterEndpointValidation(t *testing.T) {
	f := newHandlerFixture(t)
	resp := f.post(t, "/auth/register", map[string]string{
		"email":      "not-an-email",
		"username":   "ada",
		"password":   "correct horse",
		"first_name": "Ada",
		"last_name":  "Lovelace",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterEndpointForeignDomain(t *testing.T) {
	f := newHandlerFixture(t)
	resp := f.post(t, "/auth/register", map[string]string{
		"email":      "ada@gmail.com",
		"username":   "ada",
		"password":   "correct horse",
		"first_name": "Ada",
		"last_name":  "Lovelace",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLoginEndpointSuccess(t *testing.T) {
	f := newHandlerFixture(t)
	f.registerAndActivate(t)

	resp := f.post(t, "/auth/login", map[string]string{
		"identifier": testEmail,
		"password":   "correct horse",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "USER", body["role"])

	// The session cookie carries the identity.
	session := f.get(t, "/auth/session")
	require.Equal(t, http.StatusOK, session.StatusCode)
	sessionBody := decodeBody(t, session)
	require.Equal(t, true, sessionBody["authenticated"])
	require.NotEmpty(t, sessionBody["csrf_token"])
}

func TestLoginEndpointWrongPassword(t *testing.T) {
	f := newHandlerFixture(t)
	f.registerAndActivate(t)

	resp := f.post(t, "/auth/login", map[string]string{
		"identifier": testEmail,
		"password":   "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginEndpointBanned(t *testing.T) {
	f := newHandlerFixture(t)
	f.registerAndActivate(t)
	account, err := f.repo.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	account.Status = StatusBanned
	require.NoError(t, f.repo.Update(context.Background(), account))

	resp := f.post(t, "/auth/login", map[string]string{
		"identifier": testEmail,
		"password":   "correct horse",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLoginEndpointLockoutSuspends(t *testing.T) {
	f := newHandlerFixture(t)
	f.registerAndActivate(t)

	for i := 0; i < 5; i++ {
		resp := f.post(t, "/auth/login", map[string]string{
			"identifier": testEmail,
			"password":   "wrong",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := f.post(t, "/auth/login", map[string]string{
		"identifier": testEmail,
		"password":   "correct horse",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestTwoFactorEndpointFlow(t *testing.T) {
	f := newHandlerFixture(t)
	f.registerAndActivate(t)
	account, err := f.repo.FindByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	account.TwoFactorEnabled = true
	require.NoError(t, f.repo.Update(context.Background(), account))

	resp := f.post(t, "/auth/login", map[string]string{
		"identifier": testEmail,
		"password":   "correct horse",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	verify := f.post(t, "/auth/verify-2fa", map[string]string{
		"email": testEmail,
		"code":  f.notifier.code(notify.PurposeTwoFactor),
	})
	require.Equal(t, http.StatusOK, verify.StatusCode)

	session := f.get(t, "/auth/session")
	sessionBody := decodeBody(t, session)
	require.Equal(t, true, sessionBody["authenticated"])
}

func TestVerifyEmailEndpointBadCode(t *testing.T) {
	f := newHandlerFixture(t)
	f.post(t, "/auth/register", map[string]string{
		"email":      testEmail,
		"username":   "ada",
		"password":   "correct horse",
		"first_name": "Ada",
		"last_name":  "Lovelace",
	})

	resp := f.post(t, "/auth/verify-email", map[string]string{
		"email": testEmail,
		"code":  "000000",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogoutEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	f.registerAndActivate(t)

	// Not signed in yet.
	resp := f.post(t, "/auth/logout", map[string]string{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	login := f.post(t, "/auth/login", map[string]string{
		"identifier": testEmail,
		"password":   "correct horse",
	})
	require.Equal(t, http.StatusOK, login.StatusCode)

	logout := f.post(t, "/auth/logout", map[string]string{})
	require.Equal(t, http.StatusOK, logout.StatusCode)

	session := f.get(t, "/auth/session")
	sessionBody := decodeBody(t, session)
	require.Equal(t, false, sessionBody["authenticated"])
}

func TestForgotPasswordEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	f.registerAndActivate(t)

	unknown := f.post(t, "/auth/forgot-password", map[string]string{"email": "ghost@sabanciuniv.edu"})
	require.Equal(t, http.StatusNotFound, unknown.StatusCode)

	ok := f.post(t, "/auth/forgot-password", map[string]string{"email": testEmail})
	require.Equal(t, http.StatusOK, ok.StatusCode)

	conflict := f.post(t, "/auth/forgot-password", map[string]string{"email": testEmail})
	require.Equal(t, http.StatusConflict, conflict.StatusCode)
}

func TestResetPasswordEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	f.registerAndActivate(t)

	resp := f.post(t, "/auth/forgot-password", map[string]string{"email": testEmail})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := f.notifier.code(notify.PurposeReset)

	bad := f.post(t, "/auth/reset-password", map[string]string{
		"token":        "bogus",
		"new_password": "new password",
	})
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)

	good := f.post(t, "/auth/reset-password", map[string]string{
		"token":        token,
		"new_password": "new password",
	})
	require.Equal(t, http.StatusOK, good.StatusCode)

	login := f.post(t, "/auth/login", map[string]string{
		"identifier": testEmail,
		"password":   "new password",
	})
	require.Equal(t, http.StatusOK, login.StatusCode)
}
