package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their JSON name so messages match the wire format.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeError reports a backend payload that does not match the expected record.
type DecodeError struct {
	Entity string
	Err    error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("api: decode %s: %v", e.Entity, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) DecodeEntity() string { return e.Entity }

// InputError is a local check that failed before the backend was called.
type InputError struct {
	Msg string
	Err error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return "api: " + e.Msg + ": " + e.Err.Error()
	}
	return "api: " + e.Msg
}

func (e *InputError) Unwrap() error { return e.Err }

func (e *InputError) InputMessage() string { return e.Msg }

func invalid(msg string, err error) error { return &InputError{Msg: msg, Err: err} }

// fieldMessage turns the first validator failure into inline text, e.g. "Contact email is required."
func fieldMessage(err error, entity string) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Invalid " + entity + "."
	}
	fe := ve[0]
	label := strings.ReplaceAll(fe.Field(), "_", " ")
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	switch fe.Tag() {
	case "required":
		return label + " is required."
	case "email":
		return label + " must be a valid email address."
	case "oneof":
		return label + " must be one of " + fe.Param() + "."
	default:
		return label + " is invalid."
	}
}

func decodeOne[T any](entity string, raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, &DecodeError{Entity: entity, Err: err}
	}
	if err := validate.Struct(&v); err != nil {
		return v, &DecodeError{Entity: entity, Err: err}
	}
	return v, nil
}

func decodeList[T any](entity string, raw json.RawMessage) ([]T, error) {
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &DecodeError{Entity: entity, Err: err}
	}
	for i := range items {
		if err := validate.Struct(&items[i]); err != nil {
			return nil, &DecodeError{Entity: fmt.Sprintf("%s[%d]", entity, i), Err: err}
		}
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Page is the envelope of paginated admin lists. Next is empty on the last page.
type Page[T any] struct {
	Items []T    `json:"items"`
	Next  string `json:"next"`
}

func decodePage[T any](entity string, raw json.RawMessage) (Page[T], error) {
	var env struct {
		Items json.RawMessage `json:"items"`
		Next  *string         `json:"next"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Page[T]{}, &DecodeError{Entity: entity, Err: err}
	}
	if len(env.Items) == 0 {
		return Page[T]{}, &DecodeError{Entity: entity, Err: fmt.Errorf("missing items")}
	}
	items, err := decodeList[T](entity, env.Items)
	if err != nil {
		return Page[T]{}, err
	}
	p := Page[T]{Items: items}
	if env.Next != nil {
		p.Next = *env.Next
	}
	return p, nil
}
