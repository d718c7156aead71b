// Package mfa implements the authenticator enrollment wizard that gates the first login
// of an account without MFA. Its state lives in process memory only.
package mfa

import (
	"context"
	"errors"
	"sync"

	"partner-portal/internal/api"

	"github.com/google/uuid"
)

type State int

const (
	Loading State = iota
	Ready
	Verifying
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Verifying:
		return "verifying"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	ErrBusy      = errors.New("mfa: a request is already in flight")
	ErrNotReady  = errors.New("mfa: enrollment is not ready")
	ErrDiscarded = errors.New("mfa: enrollment was discarded")
)

// Enroller is the backend side of enrollment, called with the provisional bearer.
type Enroller interface {
	SetupMFA(ctx context.Context) (api.Enrollment, error)
	VerifyMFA(ctx context.Context, code string) error
	VerifyRecoveryCode(ctx context.Context, code string) error
}

// Credentials are kept only until the post-enrollment login succeeds.
type Credentials struct {
	Username string
	Password string
}

// Relogin obtains a normal session once the authenticator is verified. code is the
// verified code, empty after a recovery-code verification.
type Relogin func(ctx context.Context, creds Credentials, code string) error

// Enrollment is what the wizard shows. It is never persisted.
type Enrollment struct {
	Secret        string   `json:"secret,omitempty"`
	OTPAuthURL    string   `json:"otpauth"`
	RecoveryCodes []string `json:"recovery_codes"`
	QRImage       string   `json:"qr"`
}

// Snapshot is a consistent read of the flow for rendering.
type Snapshot struct {
	ID         string      `json:"id"`
	State      string      `json:"state"`
	Busy       bool        `json:"busy"`
	Enrollment *Enrollment `json:"enrollment,omitempty"`
	Error      error       `json:"-"`
}

type Flow struct {
	id       string
	enroller Enroller
	relogin  Relogin

	mu         sync.Mutex
	state      State
	creds      Credentials
	enrollment *Enrollment
	verified   bool
	err        error
	discarded  bool
}

// NewFlow creates a flow in Loading; call Start to issue the secret.
func NewFlow(enroller Enroller, relogin Relogin, creds Credentials) *Flow {
	return &Flow{
		id:       uuid.NewString(),
		enroller: enroller,
		relogin:  relogin,
		creds:    creds,
		state:    Loading,
	}
}

func (f *Flow) ID() string { return f.id }

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{
		ID:    f.id,
		State: f.state.String(),
		Busy:  f.state == Loading || f.state == Verifying,
		Error: f.err,
	}
	if f.enrollment != nil && f.state != Complete {
		e := *f.enrollment
		e.RecoveryCodes = append([]string{}, f.enrollment.RecoveryCodes...)
		s.Enrollment = &e
	}
	return s
}

// Start issues a fresh enrollment secret. On failure the flow is Failed without an
// enrollment and Reload may try again.
func (f *Flow) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.discarded {
		f.mu.Unlock()
		return ErrDiscarded
	}
	f.mu.Unlock()

	raw, err := f.enroller.SetupMFA(ctx)
	var e *Enrollment
	if err == nil {
		e, err = present(raw)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.discarded {
		return ErrDiscarded
	}
	if err != nil {
		f.state = Failed
		f.err = err
		return err
	}
	f.enrollment = e
	f.state = Ready
	f.err = nil
	return nil
}

// Reload re-issues setup after a failed Start.
func (f *Flow) Reload(ctx context.Context) error {
	f.mu.Lock()
	switch {
	case f.discarded:
		f.mu.Unlock()
		return ErrDiscarded
	case f.state == Verifying || f.state == Loading:
		f.mu.Unlock()
		return ErrBusy
	case f.state == Complete:
		f.mu.Unlock()
		return ErrNotReady
	}
	f.state = Loading
	f.enrollment = nil
	f.verified = false
	f.err = nil
	f.mu.Unlock()
	return f.Start(ctx)
}

// Submit validates code locally, verifies it, then logs in again with the original
// credentials. Invalid codes never reach the network.
func (f *Flow) Submit(ctx context.Context, code string) error {
	code, err := ValidateCode(code)
	if err != nil {
		f.mu.Lock()
		if !f.discarded && f.state != Verifying && f.state != Complete {
			f.err = err
		}
		f.mu.Unlock()
		return err
	}
	return f.submit(ctx, code, func(ctx context.Context) error {
		return f.enroller.VerifyMFA(ctx, code)
	})
}

// SubmitRecovery verifies with a one-time recovery code instead of an authenticator code.
func (f *Flow) SubmitRecovery(ctx context.Context, recoveryCode string) error {
	if recoveryCode == "" {
		return ErrInvalidCode
	}
	return f.submit(ctx, "", func(ctx context.Context) error {
		return f.enroller.VerifyRecoveryCode(ctx, recoveryCode)
	})
}

func (f *Flow) submit(ctx context.Context, code string, verify func(context.Context) error) error {
	f.mu.Lock()
	switch {
	case f.discarded:
		f.mu.Unlock()
		return ErrDiscarded
	case f.state == Verifying:
		f.mu.Unlock()
		return ErrBusy
	case f.enrollment == nil || f.state == Complete || f.state == Loading:
		f.mu.Unlock()
		return ErrNotReady
	}
	f.state = Verifying
	f.err = nil
	verified := f.verified
	creds := f.creds
	f.mu.Unlock()

	if !verified {
		if err := verify(ctx); err != nil {
			return f.fail(err)
		}
		f.mu.Lock()
		if f.discarded {
			f.mu.Unlock()
			return ErrDiscarded
		}
		f.verified = true
		f.mu.Unlock()
	}

	if err := f.relogin(ctx, creds, code); err != nil {
		return f.fail(err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.discarded {
		return ErrDiscarded
	}
	f.state = Complete
	f.creds = Credentials{}
	f.err = nil
	return nil
}

// fail records a submission failure. With an enrollment on screen the flow returns
// to Ready so the user can try another code; the error stays in the snapshot.
func (f *Flow) fail(err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.discarded {
		return ErrDiscarded
	}
	f.state = Failed
	if f.enrollment != nil {
		f.state = Ready
	}
	f.err = err
	return err
}

// Discard drops secrets and credentials. Calls still in flight finish without effect.
func (f *Flow) Discard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = true
	f.creds = Credentials{}
	f.enrollment = nil
}

func present(e api.Enrollment) (*Enrollment, error) {
	img, err := qrDataURL(e.QR, e.OTPAuthURL)
	if err != nil {
		return nil, err
	}
	codes := e.RecoveryCodes
	if codes == nil {
		codes = []string{}
	}
	return &Enrollment{
		Secret:        secretOf(e.Secret, e.OTPAuthURL),
		OTPAuthURL:    e.OTPAuthURL,
		RecoveryCodes: codes,
		QRImage:       img,
	}, nil
}
