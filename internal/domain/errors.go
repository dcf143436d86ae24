package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidTitle    = errors.New("invalid title")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidSchedule = errors.New("invalid schedule window")
	ErrNoAssignees     = errors.New("at least one assigned worker is required")
	ErrInvalidAmount   = errors.New("cost amount must be positive")
	ErrInvalidCategory = errors.New("invalid cost category")
	ErrInvalidRole     = errors.New("invalid worker role")
	ErrNoOpenSession   = errors.New("no open attendance session")
)

// Conflict codes recognized by clients for targeted remediation.
const (
	ConflictOpenSession = "open_session"
	ConflictStatus      = "status_conflict"
)

// ConflictError reports a mutation rejected by a business rule at the
// authoritative boundary. Code distinguishes remediable conflicts, such as a
// check-in attempted while a previous session is still open.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message == "" {
		return "conflict: " + e.Code
	}
	return fmt.Sprintf("conflict (%s): %s", e.Code, e.Message)
}

// NewConflictError constructs a conflict error with a stable code.
func NewConflictError(code, message string) *ConflictError {
	return &ConflictError{Code: code, Message: message}
}

// AsConflict unwraps err into a ConflictError when possible.
func AsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}

// IsOpenSessionConflict reports whether err is the open-session check-in
// rejection that clients remediate by closing stale sessions.
func IsOpenSessionConflict(err error) bool {
	conflict, ok := AsConflict(err)
	return ok && conflict.Code == ConflictOpenSession
}

// TransportError wraps a network or remote failure with no further structure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "transport failure"
	}
	return "transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var transport *TransportError
	return errors.As(err, &transport)
}
