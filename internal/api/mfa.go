package api

import (
	"context"
	"net/http"
	"strings"

	"partner-portal/internal/gateway"
)

// Enrollment is a freshly issued authenticator secret. It must never be persisted.
type Enrollment struct {
	OTPAuthURL    string   `json:"otpauth" validate:"required,startswith=otpauth://"`
	QR            string   `json:"qr"`
	Secret        string   `json:"secret"`
	RecoveryCodes []string `json:"recovery_codes"`
}

func (c *Client) SetupMFA(ctx context.Context) (Enrollment, error) {
	raw, err := c.raw(ctx, gateway.Request{Method: http.MethodPost, Path: "/users/mfa/setup", JSON: map[string]any{}, Timeout: c.loginTimeout})
	if err != nil {
		return Enrollment{}, err
	}
	e, err := decodeOne[Enrollment]("mfa-setup", raw)
	if err != nil {
		return Enrollment{}, err
	}
	if e.RecoveryCodes == nil {
		e.RecoveryCodes = []string{}
	}
	return e, nil
}

// VerifyMFA confirms a six-digit authenticator code.
func (c *Client) VerifyMFA(ctx context.Context, code string) error {
	return c.verify(ctx, map[string]string{"code": strings.TrimSpace(code)})
}

// VerifyRecoveryCode confirms a one-time recovery code instead of a TOTP code.
func (c *Client) VerifyRecoveryCode(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return invalid("Enter a recovery code.", nil)
	}
	return c.verify(ctx, map[string]string{"recovery_code": code})
}

type verifyAck struct {
	OK *bool `json:"ok" validate:"required"`
}

func (c *Client) verify(ctx context.Context, body map[string]string) error {
	raw, err := c.raw(ctx, gateway.Request{Method: http.MethodPost, Path: "/users/mfa/verify", JSON: body, Timeout: c.loginTimeout})
	if err != nil {
		return err
	}
	ack, err := decodeOne[verifyAck]("mfa-verify", raw)
	if err != nil {
		return err
	}
	if !*ack.OK {
		return ErrRejected
	}
	return nil
}
