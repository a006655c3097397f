package shared

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Identity captures the account fields bound to an authenticated session.
type Identity struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// SessionManager orchestrates cookie based sessions backed by Redis.
// A session is idle-expired: every commit slides the expiry window, and
// at most one live session exists per account.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session holds per-request session data.
type Session struct {
	ID        string
	identity  *Identity
	values    map[string]string
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Identity *Identity         `json:"identity,omitempty"`
	Values   map[string]string `json:"values,omitempty"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Load loads the session referenced by the request cookie, or creates a
// fresh anonymous one.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sessionKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Stale cookie: the session idled out or was displaced by a
			// newer login. Start over anonymously.
			return sm.newSession(), nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}

	sess := &Session{
		ID:       cookie.Value,
		identity: stored.Identity,
		values:   stored.Values,
	}
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	return sess, nil
}

// Establish binds the session to an identity after a completed login.
// The session identifier is rotated and any previous session for the
// same account is invalidated, so the newest login always wins.
func (sm *SessionManager) Establish(ctx context.Context, sess *Session, id Identity) error {
	if sess == nil {
		return errors.New("session missing")
	}

	// Displace the account's previous session, if any.
	prev, err := sm.client.Get(ctx, accountSessionKey(id.AccountID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if prev != "" && prev != sess.ID {
		if err := sm.client.Del(ctx, sessionKey(prev)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
	}

	// Rotate the identifier so a pre-login session ID can never become
	// an authenticated one.
	if !sess.isNew {
		if err := sm.client.Del(ctx, sessionKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
	}
	sess.ID = newSessionID()
	sess.identity = &id
	sess.isNew = true
	sess.dirty = true

	return sm.client.Set(ctx, accountSessionKey(id.AccountID), sess.ID, sm.ttl).Err()
}

// RevokeAccount drops the account's live session, if any. Used when an
// account is banned while logged in.
func (sm *SessionManager) RevokeAccount(ctx context.Context, accountID int64) error {
	id, err := sm.client.Get(ctx, accountSessionKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	return sm.client.Del(ctx, sessionKey(id), accountSessionKey(accountID)).Err()
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sessionKey(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if sess.identity != nil {
			_ = sm.client.Del(ctx, accountSessionKey(sess.identity.AccountID)).Err()
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sessionPayload{Identity: sess.identity, Values: sess.values})
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sessionKey(sess.ID), data, sm.ttl).Err(); err != nil {
			return err
		}
		sess.dirty = false
	} else {
		// Slide the idle window on plain reads too.
		_ = sm.client.Expire(ctx, sessionKey(sess.ID), sm.ttl).Err()
	}
	if sess.identity != nil {
		_ = sm.client.Expire(ctx, accountSessionKey(sess.identity.AccountID), sm.ttl).Err()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured idle timeout.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Session helpers

// Identity returns the bound identity, or nil for anonymous sessions.
func (s *Session) Identity() *Identity {
	if s == nil {
		return nil
	}
	return s.identity
}

// Authenticated reports whether the session is bound to an account.
func (s *Session) Authenticated() bool {
	return s != nil && s.identity != nil
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:     newSessionID(),
		values: make(map[string]string),
		isNew:  true,
		dirty:  true,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func accountSessionKey(accountID int64) string {
	return "account_session:" + strconv.FormatInt(accountID, 10)
}

func newSessionID() string {
	return uuid.NewString()
}
