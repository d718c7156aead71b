// Package httperr maps backend failures onto the portal's user-facing error vocabulary.
// It only classifies; deciding whether a failure evicts the session is left to callers.
package httperr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"partner-portal/internal/gateway"
	"partner-portal/internal/session"
)

type Kind int

const (
	Unknown Kind = iota
	Network
	Unauthenticated
	Forbidden
	NotFound
	Validation
	Server
	Decode
	// Input is a local check that failed before any network call.
	Input
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not_found"
	case Validation:
		return "validation"
	case Server:
		return "server"
	case Decode:
		return "decode"
	case Input:
		return "input"
	default:
		return "unknown"
	}
}

const (
	MsgNetwork         = "We could not reach the server. Check your connection and try again."
	MsgUnauthenticated = "Session expired. Please sign in again."
	MsgForbidden       = "You do not have permission to perform this action."
	MsgNotFound        = "Not found."
	MsgServer          = "We hit a server error. Please try again."
	MsgDecode          = "The server returned an unexpected response."
	MsgUnknown         = "Something went wrong. Please try again."
)

// Decoder is implemented by normalization failures.
type Decoder interface {
	error
	DecodeEntity() string
}

// Inputer is implemented by local validation failures that carry their own user text.
type Inputer interface {
	error
	InputMessage() string
}

func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}
	var se *gateway.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusUnauthorized:
			return Unauthenticated
		case se.Status == http.StatusForbidden:
			return Forbidden
		case se.Status == http.StatusNotFound:
			return NotFound
		case se.Status >= 500:
			return Server
		case se.Status >= 400:
			return Validation
		}
		return Unknown
	}
	if errors.Is(err, session.ErrExpiredToken) {
		return Unauthenticated
	}
	var te *gateway.TransportError
	if errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded) {
		return Network
	}
	var de Decoder
	if errors.As(err, &de) {
		return Decode
	}
	var in Inputer
	if errors.As(err, &in) {
		return Input
	}
	return Unknown
}

// Message returns the text shown next to the control that triggered err.
// Validation failures are surfaced verbatim from the backend.
func Message(err error) string {
	switch Classify(err) {
	case Network:
		return MsgNetwork
	case Unauthenticated:
		return MsgUnauthenticated
	case Forbidden:
		return MsgForbidden
	case NotFound:
		return MsgNotFound
	case Server:
		return MsgServer
	case Decode:
		return MsgDecode
	case Input:
		var in Inputer
		errors.As(err, &in)
		return in.InputMessage()
	case Validation:
		var se *gateway.StatusError
		errors.As(err, &se)
		if msg := detail(se.Body); msg != "" {
			return msg
		}
		return http.StatusText(se.Status)
	default:
		return MsgUnknown
	}
}

// StatusFor is the status the portal answers with when relaying err inline.
func StatusFor(err error) int {
	switch Classify(err) {
	case Network:
		return http.StatusBadGateway
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Validation:
		return gateway.StatusOf(err)
	case Decode:
		return http.StatusBadGateway
	case Server:
		return http.StatusBadGateway
	case Input:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// detail extracts the backend's error text from a (possibly truncated) JSON body.
func detail(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "<") {
			return ""
		}
		return body
	}
	for _, key := range []string{"detail", "message", "error", "code"} {
		raw, ok := m[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
		// FastAPI validation errors: [{"msg": "..."}]
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(raw, &items) == nil && len(items) > 0 && items[0].Msg != "" {
			return items[0].Msg
		}
	}
	return ""
}
