// ABOUTME: Error kinds returned by the Flickr gateway and the typed *Error carrying remote codes
// ABOUTME: Maps Flickr's numeric failure codes onto sentinel errors usable with errors.Is

package flickr

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the gateway wraps exactly one of these.
var (
	ErrConfig             = errors.New("flickr: configuration error")
	ErrMethodNotFound     = errors.New("flickr: method not found")
	ErrPermissionDenied   = errors.New("flickr: permission denied")
	ErrInvalidSignature   = errors.New("flickr: invalid signature")
	ErrMissingSignature   = errors.New("flickr: missing signature")
	ErrInvalidToken       = errors.New("flickr: invalid auth token")
	ErrInvalidAPIKey      = errors.New("flickr: invalid api key")
	ErrServiceUnavailable = errors.New("flickr: service unavailable")
	ErrBadURL             = errors.New("flickr: bad url")
	ErrRemote             = errors.New("flickr: remote error")
	ErrTransport          = errors.New("flickr: transport error")
	ErrDecode             = errors.New("flickr: undecodable response")
	ErrNoFrob             = errors.New("flickr: no frob recorded for session")
)

// Remote failure codes declared by the Flickr API.
const (
	CodeMethodNotFound     = 112
	CodeInvalidSignature   = 96
	CodeMissingSignature   = 97
	CodeInvalidToken       = 98
	CodeInsufficientPerms  = 99
	CodeInvalidAPIKey      = 100
	CodeServiceUnavailable = 105
	CodeBadURL             = 116
)

// Error is a classified gateway failure. Kind is one of the Err* sentinels;
// Code and Message are filled when the remote service reported the failure.
type Error struct {
	Kind    error
	Method  string
	Code    int
	Message string

	// PreFlight is true when the failure was decided locally before any
	// network call was made (the permission guard).
	PreFlight bool

	// Body holds the raw response for decode failures and remote errors.
	Body []byte

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Method != "" {
		msg += " (" + e.Method + ")"
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(": code %d", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// kindForCode maps a remote failure code to its sentinel. permissionCode is the
// configured "insufficient permission" code (99 unless overridden).
func kindForCode(code, permissionCode int) error {
	switch code {
	case permissionCode:
		return ErrPermissionDenied
	case CodeInvalidSignature:
		return ErrInvalidSignature
	case CodeMissingSignature:
		return ErrMissingSignature
	case CodeInvalidToken:
		return ErrInvalidToken
	case CodeInvalidAPIKey:
		return ErrInvalidAPIKey
	case CodeServiceUnavailable:
		return ErrServiceUnavailable
	case CodeBadURL:
		return ErrBadURL
	case CodeMethodNotFound:
		return ErrMethodNotFound
	default:
		return ErrRemote
	}
}
