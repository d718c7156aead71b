package mfa

import (
	"strings"

	"partner-portal/internal/api"
)

// ErrInvalidCode is returned before any network call for input that is not a six-digit code.
var ErrInvalidCode error = &api.InputError{Msg: "Enter the 6-digit code."}

// ValidateCode trims surrounding space and requires exactly six ASCII digits.
func ValidateCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) != 6 {
		return "", ErrInvalidCode
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return "", ErrInvalidCode
		}
	}
	return code, nil
}
