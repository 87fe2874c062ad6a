package apiclient

import (
	"encoding/json"
	"errors"
	"strings"
)

// Sentinel kinds. Match with errors.Is against any error returned by Client.
var (
	ErrNetwork        = errors.New("network error")
	ErrAuthentication = errors.New("authentication required")
	ErrAuthorization  = errors.New("not authorized")
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
)

// Error is returned by every Client operation that fails. Message is meant to
// be shown to the user as is.
type Error struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// MsgNetwork is the message carried by ErrNetwork failures.
const MsgNetwork = "Unable to reach the events service"

func networkError(err error) *Error {
	return &Error{Kind: ErrNetwork, Message: MsgNetwork, Err: err}
}

// statusError classifies a non-2xx response. 401, 403 and 404 always map to
// their own kinds; anything else falls back to the operation's default kind.
func statusError(status int, body []byte, fallbackKind error, fallbackMsg string) *Error {
	kind := fallbackKind
	switch status {
	case 401:
		kind = ErrAuthentication
	case 403:
		kind = ErrAuthorization
	case 404:
		kind = ErrNotFound
	}
	msg := serverMessage(body)
	if msg == "" {
		msg = fallbackMsg
	}
	return &Error{Kind: kind, Status: status, Message: msg}
}

// serverMessage extracts {"message": "..."} (or {"error": "..."}) from an error body.
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Error)
}

// outcome labels metrics and spans with the error kind.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "error"
	}
}
