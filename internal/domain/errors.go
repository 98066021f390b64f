package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
// Implementing this interface enables extensible error handling in the
// handler layer without switching on concrete types.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
)

type (
	// NotFoundError indicates a resource was not found or the caller has
	// no access to it (the two are indistinguishable on purpose).
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates authentication failure
	UnauthorizedError struct {
		Message string
	}

	// InvalidStateError indicates an operation inconsistent with the
	// current state of the resource, e.g. rewinding into a non-latest
	// subchat with an explicit message rank.
	InvalidStateError struct {
		Message string
	}

	// NoMessagesSavedError indicates a rewind target with no stored
	// message history.
	NoMessagesSavedError struct {
		Message string
	}

	// TooManySubchatsError indicates the subchat quota was reached.
	TooManySubchatsError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string        { return e.Message }
func (e *ValidationError) Error() string      { return e.Message }
func (e *UnauthorizedError) Error() string    { return e.Message }
func (e *InvalidStateError) Error() string    { return e.Message }
func (e *NoMessagesSavedError) Error() string { return e.Message }
func (e *TooManySubchatsError) Error() string { return e.Message }

func (e *NotFoundError) StatusCode() int        { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int      { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int    { return http.StatusUnauthorized }
func (e *InvalidStateError) StatusCode() int    { return http.StatusConflict }
func (e *NoMessagesSavedError) StatusCode() int { return http.StatusUnprocessableEntity }
func (e *TooManySubchatsError) StatusCode() int { return http.StatusUnprocessableEntity }

// Is implementations allow errors.Is() matching against the sentinels
func (e *NotFoundError) Is(target error) bool     { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool   { return target == ErrValidation }
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// RewindToFutureError indicates a rewind request targeting a message rank
// beyond the chat's current pointer. It carries both ranks so the UI can
// explain the failure.
type RewindToFutureError struct {
	RequestedRank int
	CurrentRank   int
}

func (e *RewindToFutureError) Error() string {
	return fmt.Sprintf("cannot rewind to a future message: requested rank %d, current rank %d",
		e.RequestedRank, e.CurrentRank)
}

func (e *RewindToFutureError) StatusCode() int { return http.StatusUnprocessableEntity }

// ErrChatNotFound is the canonical chat lookup failure returned by every
// creator-scoped chat resolution.
var ErrChatNotFound = &NotFoundError{Message: "chat not found"}
