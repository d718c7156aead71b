package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"partner-portal/internal/auth"
	"partner-portal/internal/rbac"
)

// Store is the session of one device: durable storage under scope plus its cookie mirror.
type Store struct {
	storage Storage
	scope   string
	cookies Cookies
	ttl     time.Duration
	log     *slog.Logger
	clock   func() time.Time
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.clock = now } }

func NewStore(storage Storage, scope string, cookies Cookies, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		scope:   scope,
		cookies: cookies,
		ttl:     ttl,
		log:     slog.Default(),
		clock:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.ttl <= 0 {
		s.ttl = 12 * time.Hour
	}
	return s
}

func (s *Store) Scope() string { return s.scope }

// Set writes token and role through to storage and the cookie mirror.
// Nothing is validated against the backend. A token that decodes as an already
// expired JWT is refused before anything is written.
func (s *Store) Set(ctx context.Context, token string, role rbac.Role) error {
	sess := Session{Token: token, Role: role}
	if !sess.Complete() {
		return ErrIncompleteSession
	}
	maxAge, ok := s.cookieMaxAge(token)
	if !ok {
		return ErrExpiredToken
	}
	if err := s.storage.Save(ctx, s.scope, sess); err != nil {
		return err
	}
	s.cookies.SetCookie(CookieToken, token, maxAge)
	s.cookies.SetCookie(CookieRole, role.String(), maxAge)
	return nil
}

// Clear removes the session from storage and expires every session cookie.
// Cookies are expired even when the storage delete fails.
func (s *Store) Clear(ctx context.Context) error {
	err := s.storage.Delete(ctx, s.scope)
	s.cookies.ExpireCookie(CookieToken)
	s.cookies.ExpireCookie(CookieRole)
	s.cookies.ExpireCookie(CookieBackend)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Session returns the stored session, or an empty one.
func (s *Store) Session(ctx context.Context) (Session, error) {
	sess, err := s.storage.Load(ctx, s.scope)
	if errors.Is(err, ErrNotFound) {
		return Session{}, nil
	}
	return sess, err
}

// Role returns the optimistic role. It must not be used for authorization.
func (s *Store) Role(ctx context.Context) rbac.Role {
	sess, err := s.Session(ctx)
	if err == nil && sess.Role != "" {
		return sess.Role
	}
	if v, ok := s.cookies.Cookie(CookieRole); ok {
		if r, ok := rbac.ParseRole(v); ok {
			return r
		}
	}
	return ""
}

// Token resolves the bearer token. Storage wins; when it is empty the cookie mirror is
// used and, if a role can be established, written back into storage.
func (s *Store) Token(ctx context.Context) (string, error) {
	sess, loadErr := s.storage.Load(ctx, s.scope)
	if loadErr == nil && sess.Token != "" {
		return sess.Token, nil
	}
	if loadErr != nil && !errors.Is(loadErr, ErrNotFound) {
		s.log.Warn("session storage unavailable, using cookie", "scope", s.scope, "error", loadErr)
	}

	token, ok := s.cookies.Cookie(CookieBackend)
	if !ok {
		token, ok = s.cookies.Cookie(CookieToken)
	}
	if !ok {
		return "", nil
	}
	if loadErr != nil && !errors.Is(loadErr, ErrNotFound) {
		return token, nil
	}

	role, ok := s.repairRole(token)
	if !ok {
		return token, nil
	}
	if err := s.storage.Save(ctx, s.scope, Session{Token: token, Role: role}); err != nil {
		s.log.Warn("session repair failed", "scope", s.scope, "error", err)
	}
	return token, nil
}

func (s *Store) repairRole(token string) (rbac.Role, bool) {
	if v, ok := s.cookies.Cookie(CookieRole); ok {
		if r, ok := rbac.ParseRole(v); ok {
			return r, true
		}
	}
	claims, err := auth.Inspect(token)
	if err != nil {
		return "", false
	}
	return rbac.ParseRole(claims.Role)
}

// cookieMaxAge follows the JWT expiry when the token carries one and the store TTL
// otherwise. It reports false for a token that has already expired.
func (s *Store) cookieMaxAge(token string) (int, bool) {
	left, ok := auth.Lifetime(token, s.clock())
	if !ok {
		return int(s.ttl / time.Second), true
	}
	if left <= 0 {
		return 0, false
	}
	// A zero Max-Age would drop the attribute and turn the cookie into a browser-session one.
	return max(1, int(left/time.Second)), true
}

// BackendCookies forwards the backend's own session cookie so cookie-based auth keeps working.
func (s *Store) BackendCookies() []*http.Cookie {
	v, ok := s.cookies.Cookie(CookieBackend)
	if !ok {
		return nil
	}
	return []*http.Cookie{{Name: CookieBackend, Value: v}}
}
