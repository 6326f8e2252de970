package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager reads and writes cookie sessions stored in Redis. Sessions
// are issued by the sign-in service; this service shares the store.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	prefix     string
	secret     []byte
}

// Session holds per-request session data.
type Session struct {
	ID     string
	values map[string]string
	userID string
	isNew  bool
	dirty  bool
}

type sessionPayload struct {
	Values map[string]string `json:"values"`
	UserID string            `json:"user_id"`
}

// NewSessionManager constructs a SessionManager. prefix namespaces the Redis
// keys and defaults to "session". Cookie values are signed with secret.
func NewSessionManager(client *redis.Client, cookieName, prefix, secret string, ttl time.Duration, secure bool) *SessionManager {
	if prefix == "" {
		prefix = "session"
	}
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		prefix:     prefix,
		secret:     []byte(secret),
	}
}

// Load returns the session named by the request cookie, or a new empty
// session when there is none. A cookie with a bad signature is ignored and a
// cookie pointing at an expired session yields an empty session.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(""), nil
		}
		return nil, err
	}
	id, ok := sm.verify(strings.TrimSpace(cookie.Value))
	if !ok {
		return sm.newSession(""), nil
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sm.newSession(id), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionStore, err)
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	sess := sm.newSession(id)
	sess.values = stored.Values
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	sess.userID = stored.UserID
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Commit persists a modified session and refreshes its cookie.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil || !sess.dirty {
		return nil
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	data, err := json.Marshal(sessionPayload{Values: sess.values, UserID: sess.userID})
	if err != nil {
		return err
	}
	if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionStore, err)
	}
	sess.dirty = false
	sess.isNew = false
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sm.sign(sess.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return nil
}

// Issue stores a new session bound to userID and returns the signed cookie
// value. Used for local development sessions.
func (sm *SessionManager) Issue(ctx context.Context, userID string) (string, error) {
	sess := sm.newSession(uuid.NewString())
	sess.SetUser(userID)
	data, err := json.Marshal(sessionPayload{Values: sess.values, UserID: sess.userID})
	if err != nil {
		return "", err
	}
	if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionStore, err)
	}
	return sm.sign(sess.ID), nil
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
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

// SetUser associates the session with an admin id.
func (s *Session) SetUser(id string) {
	s.userID = id
	s.dirty = true
}

// User returns the admin id bound to the session.
func (s *Session) User() string {
	return s.userID
}

// IsNew reports whether the session was not found in the store.
func (s *Session) IsNew() bool {
	return s.isNew
}

func (sm *SessionManager) newSession(id string) *Session {
	return &Session{
		ID:     id,
		values: make(map[string]string),
		isNew:  true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return sm.prefix + ":" + id
}

func (sm *SessionManager) sign(id string) string {
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (sm *SessionManager) verify(value string) (string, bool) {
	id, sig, found := strings.Cut(value, ".")
	if !found || id == "" {
		return "", false
	}
	expected := sm.sign(id)
	if !hmac.Equal([]byte(expected), []byte(id+"."+sig)) {
		return "", false
	}
	return id, true
}
