package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"partner-portal/internal/rbac"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mintToken(t *testing.T, role string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "u1", "exp": exp.Unix()}
	if role != "" {
		claims["role"] = role
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

func newTestStore(storage Storage) (*Store, *MemoryCookies) {
	jar := NewMemoryCookies()
	return NewStore(storage, "device-1", jar, time.Hour), jar
}

func TestSetThenClear(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s, jar := newTestStore(storage)

	require.NoError(t, s.Set(ctx, "opaque-token", rbac.RoleAgent))

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", tok)

	stored, err := storage.Load(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, Session{Token: "opaque-token", Role: rbac.RoleAgent}, stored)

	c, ok := jar.Cookie(CookieToken)
	assert.True(t, ok)
	assert.Equal(t, "opaque-token", c)
	r, _ := jar.Cookie(CookieRole)
	assert.Equal(t, "AZOR", r)
	assert.Equal(t, 3600, jar.MaxAge(CookieToken))

	jar.SetCookie(CookieBackend, "backend", 60)
	require.NoError(t, s.Clear(ctx))

	tok, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
	_, err = storage.Load(ctx, "device-1")
	assert.ErrorIs(t, err, ErrNotFound)
	for _, name := range []string{CookieToken, CookieRole, CookieBackend} {
		_, ok := jar.Cookie(name)
		assert.False(t, ok, name)
	}
}

func TestSet_RejectsHalfSession(t *testing.T) {
	ctx := context.Background()
	s, jar := newTestStore(NewMemoryStorage())

	assert.ErrorIs(t, s.Set(ctx, "", rbac.RoleAdmin), ErrIncompleteSession)
	assert.ErrorIs(t, s.Set(ctx, "tok", ""), ErrIncompleteSession)
	assert.ErrorIs(t, s.Set(ctx, "tok", rbac.Role("ROOT")), ErrIncompleteSession)

	_, ok := jar.Cookie(CookieToken)
	assert.False(t, ok)
}

func TestSet_CookieLifetimeFollowsTokenExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	jar := NewMemoryCookies()
	s := NewStore(NewMemoryStorage(), "d", jar, time.Hour, WithClock(func() time.Time { return now }))

	tok := mintToken(t, "COVENANT", now.Add(10*time.Minute))
	require.NoError(t, s.Set(context.Background(), tok, rbac.RoleAdmin))
	assert.Equal(t, 600, jar.MaxAge(CookieToken))
	assert.Equal(t, 600, jar.MaxAge(CookieRole))
}

func TestSet_RefusesExpiredToken(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 500_000_000, time.UTC)
	storage := NewMemoryStorage()
	jar := NewMemoryCookies()
	s := NewStore(storage, "d", jar, time.Hour, WithClock(func() time.Time { return now }))
	require.NoError(t, s.Set(ctx, "older", rbac.RoleAgent))

	err := s.Set(ctx, mintToken(t, "AZOR", now.Add(-time.Minute)), rbac.RoleAgent)
	assert.ErrorIs(t, err, ErrExpiredToken)

	stored, err := storage.Load(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "older", stored.Token, "storage keeps the previous session")
	c, _ := jar.Cookie(CookieToken)
	assert.Equal(t, "older", c, "cookie mirror agrees with storage")
	assert.Equal(t, 3600, jar.MaxAge(CookieToken))

	require.NoError(t, s.Set(ctx, mintToken(t, "AZOR", now.Add(time.Second)), rbac.RoleAgent))
	assert.Equal(t, 1, jar.MaxAge(CookieToken))
}

func TestToken_RepairsStorageFromCookies(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s, jar := newTestStore(storage)
	jar.SetCookie(CookieToken, "cookie-token", 60)
	jar.SetCookie(CookieRole, "covenant", 60)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cookie-token", tok)

	stored, err := storage.Load(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, Session{Token: "cookie-token", Role: rbac.RoleAdmin}, stored)
}

func TestToken_PrefersBackendCookie(t *testing.T) {
	s, jar := newTestStore(NewMemoryStorage())
	jar.SetCookie(CookieToken, "mirror", 60)
	jar.SetCookie(CookieBackend, "backend", 60)
	jar.SetCookie(CookieRole, "AZOR", 60)

	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backend", tok)
	assert.Len(t, s.BackendCookies(), 1)
}

func TestToken_RepairUsesClaimRole(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s, jar := newTestStore(storage)
	tok := mintToken(t, "AZOR", time.Now().Add(time.Hour))
	jar.SetCookie(CookieBackend, tok, 60)

	got, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, tok, got)

	stored, err := storage.Load(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAgent, stored.Role)
}

func TestToken_NoRoleSkipsRepair(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s, jar := newTestStore(storage)
	jar.SetCookie(CookieToken, "opaque", 60)

	got, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque", got)

	_, err = storage.Load(ctx, "device-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

type brokenStorage struct{ err error }

func (b brokenStorage) Load(context.Context, string) (Session, error) { return Session{}, b.err }
func (b brokenStorage) Save(context.Context, string, Session) error   { return b.err }
func (b brokenStorage) Delete(context.Context, string) error          { return b.err }

func TestToken_StorageDownFallsBackToCookie(t *testing.T) {
	s, jar := newTestStore(brokenStorage{err: errors.New("down")})
	jar.SetCookie(CookieToken, "cookie-token", 60)
	jar.SetCookie(CookieRole, "AZOR", 60)

	tok, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cookie-token", tok)
}

func TestClear_ExpiresCookiesEvenWhenStorageFails(t *testing.T) {
	s, jar := newTestStore(brokenStorage{err: errors.New("down")})
	jar.SetCookie(CookieToken, "t", 60)
	jar.SetCookie(CookieRole, "AZOR", 60)

	err := s.Clear(context.Background())
	require.Error(t, err)
	_, ok := jar.Cookie(CookieToken)
	assert.False(t, ok)
	_, ok = jar.Cookie(CookieRole)
	assert.False(t, ok)
}

func TestRole_IsOptimistic(t *testing.T) {
	ctx := context.Background()
	s, jar := newTestStore(NewMemoryStorage())
	assert.Equal(t, rbac.Role(""), s.Role(ctx))

	jar.SetCookie(CookieRole, "COVENANT", 60)
	assert.Equal(t, rbac.RoleAdmin, s.Role(ctx))

	require.NoError(t, s.Set(ctx, "t", rbac.RoleAgent))
	assert.Equal(t, rbac.RoleAgent, s.Role(ctx))
}
