package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"partner-portal/internal/gateway"
	"partner-portal/internal/rbac"
)

// DefaultLoginTimeout bounds authentication calls independently of transport defaults.
const DefaultLoginTimeout = 15 * time.Second

var (
	ErrMissingCredentials error = &InputError{Msg: "Email and password are required."}
	// ErrRejected is returned when the backend acknowledges a call with ok=false.
	ErrRejected = errors.New("api: request rejected")
)

type LoginResult struct {
	AccessToken string    `json:"access_token" validate:"required"`
	TokenType   string    `json:"token_type"`
	Role        rbac.Role `json:"role" validate:"required,oneof=AZOR COVENANT"`
	MFAEnroll   bool      `json:"mfa_enroll"`
}

// Login exchanges credentials for an access token. It never attaches the current session.
func (c *Client) Login(ctx context.Context, username, password, mfaCode string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, ErrMissingCredentials
	}
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	header := http.Header{}
	if mfaCode = strings.TrimSpace(mfaCode); mfaCode != "" {
		form.Set("mfa_code", mfaCode)
		header.Set("X-MFA-Code", mfaCode)
	}

	raw, err := c.raw(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/token",
		Form:      form,
		Header:    header,
		Anonymous: true,
		Timeout:   c.loginTimeout,
	})
	if err != nil {
		return LoginResult{}, err
	}
	return decodeOne[LoginResult]("login", raw)
}
