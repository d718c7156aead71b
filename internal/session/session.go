package session

import (
	"context"
	"errors"

	"partner-portal/internal/rbac"
)

var (
	// ErrIncompleteSession is returned when a write would leave a token without a role or the reverse.
	ErrIncompleteSession = errors.New("session: token and role must be set together")
	// ErrExpiredToken is returned by Store.Set for a token whose exp claim has passed.
	ErrExpiredToken = errors.New("session: token already expired")
	// ErrNotFound is returned by Storage.Load when the scope holds no session.
	ErrNotFound = errors.New("session: not found")
)

// Session is the persisted authentication state of one device.
// Token and Role are either both set or both empty.
type Session struct {
	Token string    `json:"token"`
	Role  rbac.Role `json:"role"`
}

func (s Session) Empty() bool { return s.Token == "" && s.Role == "" }

// Complete reports whether the session satisfies the set-together invariant with a known role.
func (s Session) Complete() bool { return s.Token != "" && s.Role.Valid() }

// Storage is the durable side of the session, keyed by device scope.
// Implementations must write token and role atomically.
type Storage interface {
	Load(ctx context.Context, scope string) (Session, error)
	Save(ctx context.Context, scope string, s Session) error
	Delete(ctx context.Context, scope string) error
}
