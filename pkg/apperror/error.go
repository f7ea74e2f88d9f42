package apperror

import (
	"errors"
	"net/http"
)

// Error kinds shared by the API server and the client SDK.
var (
	ErrDuplicateApplication    = errors.New("duplicate application")
	ErrAlreadyAccepted         = errors.New("application already accepted")
	ErrConflictingAcceptance   = errors.New("another application for this job is already accepted")
	ErrCannotRejectAccepted    = errors.New("an accepted application cannot be rejected")
	ErrProfileUnresolvable     = errors.New("profile field unresolvable")
	ErrChannelNotConnected     = errors.New("realtime channel not connected")
	ErrPersistenceFailure      = errors.New("persistence failure")
	ErrTransientNetworkFailure = errors.New("transient network failure")
)

// Kind codes rendered in the "error" field of API responses.
const (
	KindDuplicateApplication  = "DUPLICATE_APPLICATION"
	KindAlreadyAccepted       = "ALREADY_ACCEPTED"
	KindConflictingAcceptance = "CONFLICTING_ACCEPTANCE"
	KindCannotRejectAccepted  = "CANNOT_REJECT_ACCEPTED"
	KindProfileUnresolvable   = "PROFILE_UNRESOLVABLE"
	KindPersistenceFailure    = "PERSISTENCE_FAILURE"
)

var kinds = map[string]error{
	KindDuplicateApplication:  ErrDuplicateApplication,
	KindAlreadyAccepted:       ErrAlreadyAccepted,
	KindConflictingAcceptance: ErrConflictingAcceptance,
	KindCannotRejectAccepted:  ErrCannotRejectAccepted,
	KindProfileUnresolvable:   ErrProfileUnresolvable,
	KindPersistenceFailure:    ErrPersistenceFailure,
}

// FromKind returns the sentinel for a kind code, or nil when the code is unknown.
func FromKind(kind string) error {
	return kinds[kind]
}

type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithKind builds an AppError that unwraps to one of the taxonomy sentinels.
func WithKind(code int, kind, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Kind:    kind,
		Err:     kinds[kind],
	}
}

func BadRequest(message string) *AppError {
	return New(http.StatusBadRequest, message, nil)
}

func Unauthorized(message string) *AppError {
	return New(http.StatusUnauthorized, message, nil)
}

func Forbidden(message string) *AppError {
	return New(http.StatusForbidden, message, nil)
}

func NotFound(message string) *AppError {
	return New(http.StatusNotFound, message, nil)
}

func Conflict(message string) *AppError {
	return New(http.StatusConflict, message, nil)
}

func Internal(err error) *AppError {
	return New(http.StatusInternalServerError, "Internal Server Error", err)
}

// Persistence wraps a store failure so callers can match ErrPersistenceFailure.
func Persistence(err error) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: "Failed to save changes, please retry",
		Kind:    KindPersistenceFailure,
		Err:     errors.Join(ErrPersistenceFailure, err),
	}
}
