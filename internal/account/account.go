// Package account orchestrates login, logout and who-am-I on top of the session store.
package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"partner-portal/internal/api"
	"partner-portal/internal/gateway"
	"partner-portal/internal/metrics"
	"partner-portal/internal/mfa"
	"partner-portal/internal/rbac"
)

type Outcome int

const (
	// OutcomeSignedIn means the session was written and protected pages are reachable.
	OutcomeSignedIn Outcome = iota + 1
	// OutcomeEnroll means the account must enroll an authenticator first. No session is written.
	OutcomeEnroll
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSignedIn:
		return "signed_in"
	case OutcomeEnroll:
		return "enroll"
	default:
		return "unknown"
	}
}

// Session is the subset of session.Store the service writes through.
type Session interface {
	gateway.Credentials
	Set(ctx context.Context, token string, role rbac.Role) error
	Clear(ctx context.Context) error
}

type Result struct {
	Outcome Outcome
	Role    rbac.Role
	// Provisional is the token issued alongside an enrollment requirement. It only
	// authorizes the enrollment calls and is never stored.
	Provisional string
}

type Service struct {
	gw           *gateway.Client
	log          *slog.Logger
	metrics      *metrics.Metrics
	loginTimeout time.Duration
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLoginTimeout bounds sign-in and enrollment calls separately from the gateway default.
func WithLoginTimeout(d time.Duration) Option { return func(s *Service) { s.loginTimeout = d } }

func NewService(gw *gateway.Client, opts ...Option) *Service {
	s := &Service{gw: gw, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns an API client authenticated by sess.
func (s *Service) Client(sess gateway.Credentials) *api.Client {
	return api.New(s.gw.With(sess), api.WithLoginTimeout(s.loginTimeout))
}

// Login exchanges credentials for a session. When the backend asks for MFA enrollment
// the session is left untouched and the provisional token is returned instead.
func (s *Service) Login(ctx context.Context, sess Session, username, password, mfaCode string) (Result, error) {
	res, err := s.Client(sess).Login(ctx, username, password, mfaCode)
	if err != nil {
		s.metrics.Login("failed")
		s.log.Info("login failed", "error", err)
		return Result{}, err
	}
	if res.MFAEnroll {
		s.metrics.Login(OutcomeEnroll.String())
		return Result{Outcome: OutcomeEnroll, Role: res.Role, Provisional: res.AccessToken}, nil
	}
	if err := sess.Set(ctx, res.AccessToken, res.Role); err != nil {
		s.metrics.Login("failed")
		return Result{}, err
	}
	s.metrics.Login(OutcomeSignedIn.String())
	return Result{Outcome: OutcomeSignedIn, Role: res.Role}, nil
}

// WhoAmI fetches the live user and re-asserts the session with the server's role.
func (s *Service) WhoAmI(ctx context.Context, sess Session) (api.User, error) {
	u, err := s.Client(sess).Me(ctx)
	if err != nil {
		return api.User{}, err
	}
	token, err := sess.Token(ctx)
	if err != nil {
		return api.User{}, err
	}
	if token == "" {
		return u, nil
	}
	if err := sess.Set(ctx, token, u.Role); err != nil {
		s.log.Warn("session re-assert failed", "error", err)
	}
	return u, nil
}

func (s *Service) Logout(ctx context.Context, sess Session) error {
	return sess.Clear(ctx)
}

var (
	ErrNotEnrolling = errors.New("account: login did not ask for enrollment")
	ErrNoSession    = errors.New("account: no session bound to context")
)

type ctxKey int

const ctxSession ctxKey = iota

// WithSession binds the session an enrollment submitted under ctx completes into.
// Enrollment outlives the request that started it, so each submission brings its own.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, ctxSession, sess)
}

func sessionFrom(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(ctxSession).(Session)
	return sess, ok && sess != nil
}

// StartEnrollment issues a new authenticator secret with the provisional token from an
// enroll outcome. The flow's relogin signs in again with the same credentials and writes
// the session bound to the submitting context.
func (s *Service) StartEnrollment(ctx context.Context, res Result, username, password string) (*mfa.Flow, error) {
	if res.Outcome != OutcomeEnroll || res.Provisional == "" {
		return nil, ErrNotEnrolling
	}
	enroller := s.Client(gateway.Bearer(res.Provisional))
	relogin := func(ctx context.Context, creds mfa.Credentials, code string) error {
		sess, ok := sessionFrom(ctx)
		if !ok {
			return ErrNoSession
		}
		again, err := s.Login(ctx, sess, creds.Username, creds.Password, code)
		if err != nil {
			return err
		}
		if again.Outcome != OutcomeSignedIn {
			return errors.New("account: backend still requires enrollment")
		}
		return nil
	}
	f := mfa.NewFlow(enroller, relogin, mfa.Credentials{Username: username, Password: password})
	if err := f.Start(ctx); err != nil {
		return f, err
	}
	return f, nil
}
