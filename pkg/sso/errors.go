package sso

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a federation failure
type ErrorKind string

const (
	KindTokenExchangeFailed       ErrorKind = "TokenExchangeFailed"
	KindProfileFetchFailed        ErrorKind = "ProfileFetchFailed"
	KindMissingEmailMapping       ErrorKind = "MissingEmailMapping"
	KindMissingGroupConfiguration ErrorKind = "MissingGroupConfiguration"
	KindAmbiguousGroupName        ErrorKind = "AmbiguousGroupName"
	KindMissingDefaultRole        ErrorKind = "MissingDefaultRole"
	KindUnknownProvider           ErrorKind = "UnknownProvider"
)

// Sentinel errors matched by errors.Is against a *FederationError of the same kind
var (
	ErrTokenExchangeFailed       = errors.New("token exchange failed")
	ErrProfileFetchFailed        = errors.New("profile fetch failed")
	ErrMissingEmailMapping       = errors.New("no identifying attribute available")
	ErrMissingGroupConfiguration = errors.New("missing group configuration")
	ErrAmbiguousGroupName        = errors.New("ambiguous group name")
	ErrMissingDefaultRole        = errors.New("missing default role")
	ErrUnknownProvider           = errors.New("unknown identity provider")
)

var kindSentinels = map[ErrorKind]error{
	KindTokenExchangeFailed:       ErrTokenExchangeFailed,
	KindProfileFetchFailed:        ErrProfileFetchFailed,
	KindMissingEmailMapping:       ErrMissingEmailMapping,
	KindMissingGroupConfiguration: ErrMissingGroupConfiguration,
	KindAmbiguousGroupName:        ErrAmbiguousGroupName,
	KindMissingDefaultRole:        ErrMissingDefaultRole,
	KindUnknownProvider:           ErrUnknownProvider,
}

// FederationError is a structured pipeline failure.
// Status is the upstream HTTP status for token exchange and profile fetch failures.
type FederationError struct {
	Kind     ErrorKind
	Provider string
	Status   int
	Detail   string
	Err      error
}

func (e *FederationError) Error() string {
	msg := string(e.Kind)
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		msg = sentinel.Error()
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Provider != "" {
		msg = fmt.Sprintf("%s (provider %s)", msg, e.Provider)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FederationError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *FederationError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// HTTPStatus maps the failure to the status returned to the caller
func (e *FederationError) HTTPStatus() int {
	switch e.Kind {
	case KindTokenExchangeFailed, KindProfileFetchFailed:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusBadGateway
	case KindMissingEmailMapping:
		return http.StatusBadRequest
	case KindUnknownProvider:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the message safe to return to the end user. Configuration
// defects are reported without detail.
func (e *FederationError) UserMessage() string {
	switch e.Kind {
	case KindMissingGroupConfiguration, KindMissingDefaultRole:
		return "identity provider is misconfigured"
	case KindMissingEmailMapping:
		return ErrMissingEmailMapping.Error()
	default:
		if sentinel, ok := kindSentinels[e.Kind]; ok {
			return sentinel.Error()
		}
		return "federated login failed"
	}
}

// StatusFor returns the HTTP status for any pipeline error
func StatusFor(err error) int {
	var fedErr *FederationError
	if errors.As(err, &fedErr) {
		return fedErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func newError(kind ErrorKind, provider string, status int, detail string, err error) *FederationError {
	return &FederationError{
		Kind:     kind,
		Provider: provider,
		Status:   status,
		Detail:   detail,
		Err:      err,
	}
}
