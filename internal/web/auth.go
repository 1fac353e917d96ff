package web

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	sessionCookie = "session"
	sessionTTL    = 24 * time.Hour
)

type session struct {
	user      string
	expiresAt time.Time
}

// AuthManager checks logins against the configured user and keeps the
// session store. The configured password may already be a bcrypt hash; a
// plain value is hashed once at construction so the comparison path is the
// same either way.
type AuthManager struct {
	username string
	hash     []byte

	mu       sync.RWMutex
	sessions map[string]session
}

func NewAuthManager(username, password string) (*AuthManager, error) {
	hash := []byte(password)
	if !isBcryptHash(password) {
		h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash web password: %w", err)
		}
		hash = h
	}

	return &AuthManager{
		username: username,
		hash:     hash,
		sessions: make(map[string]session),
	}, nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func (a *AuthManager) ValidateCredentials(username, password string) bool {
	if username != a.username {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
}

// CreateSession registers a fresh session and returns its cookie value and
// expiry.
func (a *AuthManager) CreateSession(user string) (string, time.Time, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, err
	}
	id := base64.URLEncoding.EncodeToString(buf)
	expires := time.Now().Add(sessionTTL)

	a.mu.Lock()
	a.sessions[id] = session{user: user, expiresAt: expires}
	a.mu.Unlock()

	slog.Info("Web session created", "user", user)
	return id, expires, nil
}

func (a *AuthManager) ValidSession(id string) bool {
	a.mu.RLock()
	s, ok := a.sessions[id]
	a.mu.RUnlock()

	if !ok {
		return false
	}
	if time.Now().After(s.expiresAt) {
		a.DeleteSession(id)
		return false
	}
	return true
}

func (a *AuthManager) DeleteSession(id string) {
	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
}

// RequireAuth gates next behind a valid session. Browsers are redirected to
// the login form; JSON endpoints get a bare 401 instead.
func (a *AuthManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err == nil && a.ValidSession(cookie.Value) {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, ".json") {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
}

// PruneExpired drops sessions past their expiry. The server calls this
// periodically while running.
func (a *AuthManager) PruneExpired() {
	now := time.Now()
	a.mu.Lock()
	for id, s := range a.sessions {
		if now.After(s.expiresAt) {
			delete(a.sessions, id)
		}
	}
	a.mu.Unlock()
}
