package guard

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"partner-portal/internal/api"
	"partner-portal/internal/metrics"
)

type State int

const (
	Unknown State = iota
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// View is what a guarded page renders for the current state.
type View int

const (
	ViewLoading View = iota
	ViewNothing
	ViewChildren
)

// Session is the part of the session store the check needs.
type Session interface {
	Token(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// Users fetches the live user for the session's credentials.
type Users interface {
	Me(ctx context.Context) (api.User, error)
}

var (
	ErrNoToken   = errors.New("guard: no session token")
	ErrEmptyUser = errors.New("guard: user record has no id")
)

// Check is the in-page session check for one mounted page. It leaves Unknown exactly
// once. After Close, a fetch that completes mutates nothing.
type Check struct {
	session Session
	users   Users
	log     *slog.Logger
	metrics *metrics.Metrics
	onLeave func()

	mu     sync.Mutex
	state  State
	user   api.User
	err    error
	closed bool
	done   chan struct{}
}

type CheckOption func(*Check)

// OnUnauthenticated registers the redirect to login.
func OnUnauthenticated(fn func()) CheckOption { return func(c *Check) { c.onLeave = fn } }

func WithLogger(l *slog.Logger) CheckOption { return func(c *Check) { c.log = l } }

func WithMetrics(m *metrics.Metrics) CheckOption { return func(c *Check) { c.metrics = m } }

func NewCheck(s Session, users Users, opts ...CheckOption) *Check {
	c := &Check{session: s, users: users, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Check) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Check) View() View {
	switch c.State() {
	case Authenticated:
		return ViewChildren
	case Unauthenticated:
		return ViewNothing
	default:
		return ViewLoading
	}
}

// User returns the live user once Authenticated.
func (c *Check) User() (api.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.state == Authenticated
}

// Err returns why the check ended Unauthenticated.
func (c *Check) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close marks the page unmounted.
func (c *Check) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Run performs the check once. Later and concurrent calls wait for and return the
// first result without another fetch. Run returns Unknown when the page was closed or
// ctx ended before the result arrived.
func (c *Check) Run(ctx context.Context) State {
	c.mu.Lock()
	if c.state != Unknown || c.closed {
		st := c.state
		c.mu.Unlock()
		return st
	}
	if c.done != nil {
		done := c.done
		c.mu.Unlock()
		select {
		case <-done:
			return c.State()
		case <-ctx.Done():
			return Unknown
		}
	}
	c.done = make(chan struct{})
	c.mu.Unlock()

	user, err := c.verify(ctx)

	c.mu.Lock()
	if c.closed || ctx.Err() != nil {
		c.closed = true
		close(c.done)
		c.mu.Unlock()
		c.metrics.GuardCheck("cancelled")
		return Unknown
	}
	if err == nil {
		c.state = Authenticated
		c.user = user
		close(c.done)
		c.mu.Unlock()
		c.metrics.GuardCheck(Authenticated.String())
		return Authenticated
	}
	c.state = Unauthenticated
	c.err = err
	close(c.done)
	c.mu.Unlock()

	c.metrics.GuardCheck(Unauthenticated.String())
	c.log.Info("session check failed", "error", err)
	if cerr := c.session.Clear(context.WithoutCancel(ctx)); cerr != nil {
		c.log.Warn("session clear failed", "error", cerr)
	}
	if c.onLeave != nil {
		c.onLeave()
	}
	return Unauthenticated
}

func (c *Check) verify(ctx context.Context) (api.User, error) {
	token, err := c.session.Token(ctx)
	if err != nil {
		return api.User{}, err
	}
	if token == "" {
		return api.User{}, ErrNoToken
	}
	user, err := c.users.Me(ctx)
	if err != nil {
		return api.User{}, err
	}
	if user.ID == "" {
		return api.User{}, ErrEmptyUser
	}
	return user, nil
}
