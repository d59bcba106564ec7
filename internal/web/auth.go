package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const sessionCookie = "session"

// SessionAuth guards the terminal and update endpoints with a single shared
// password and in-memory session tokens. A nil *SessionAuth disables
// authentication entirely.
type SessionAuth struct {
	hash []byte
	ttl  time.Duration

	mu       sync.Mutex
	sessions map[string]time.Time
}

// NewSessionAuth returns session-based auth backed by a bcrypt password
// hash. An empty hash returns nil, which callers treat as auth disabled.
func NewSessionAuth(passwordHash string, ttl time.Duration) *SessionAuth {
	if passwordHash == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionAuth{
		hash:     []byte(passwordHash),
		ttl:      ttl,
		sessions: make(map[string]time.Time),
	}
}

// Login verifies the password and mints a new session token
func (a *SessionAuth) Login(password string) (string, bool) {
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		return "", false
	}

	token := uuid.NewString()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.prune()
	a.sessions[token] = time.Now().Add(a.ttl)
	return token, true
}

// Authorized reports whether the request carries a live session cookie
func (a *SessionAuth) Authorized(r *http.Request) bool {
	if a == nil {
		return true
	}

	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	expires, ok := a.sessions[c.Value]
	if !ok {
		return false
	}
	if time.Now().After(expires) {
		delete(a.sessions, c.Value)
		return false
	}
	return true
}

// prune drops expired sessions; callers hold a.mu
func (a *SessionAuth) prune() {
	now := time.Now()
	for token, expires := range a.sessions {
		if now.After(expires) {
			delete(a.sessions, token)
		}
	}
}

// HashPassword produces a bcrypt hash suitable for the config file
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
