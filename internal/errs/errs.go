// Package errs defines the coded error taxonomy shared by all operators.
// Codes group by family: E1xx validation, E2xx processing, E3xx pipeline
// input, E4xx storage, E5xx session. The transport layer renders the code
// in the tool error envelope so coordinators can branch without parsing
// message text.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies an error family member on the wire.
type Code string

const (
	CodeValidation     Code = "E101"
	CodeProcessing     Code = "E102"
	CodeBadDirectory   Code = "E301"
	CodeStorage        Code = "E401"
	CodeNotFound       Code = "E501"
	CodeLockContention Code = "E502"
	CodeInvalidStatus  Code = "E503"
)

// Sentinel errors for probes that only care about the failure class.
var (
	ErrNotFound = errors.New("not found")
	ErrLocked   = errors.New("session locked")
)

// Error is a coded error with operation context. Detail carries structured
// fields the transport serializes alongside code and message (lock holder,
// field name, and similar).
type Error struct {
	Code    Code
	Op      string
	Message string
	Err     error
	Detail  map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Op, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches a structured field to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// Validation reports malformed input: empty required field, enum violation.
func Validation(op, message string) *Error {
	return &Error{Code: CodeValidation, Op: op, Message: message}
}

// Processing wraps an internal operator failure, keeping the original cause.
func Processing(op, message string, err error) *Error {
	return &Error{Code: CodeProcessing, Op: op, Message: message, Err: err}
}

// BadDirectory reports a pipeline input directory that does not exist or is
// not a directory.
func BadDirectory(op, dir string) *Error {
	return &Error{Code: CodeBadDirectory, Op: op,
		Message: fmt.Sprintf("input directory invalid: %s", dir)}
}

// Storage wraps an embedded-store read or write failure.
func Storage(op string, err error) *Error {
	return &Error{Code: CodeStorage, Op: op, Message: "storage operation failed", Err: err}
}

// NotFound reports a missing session or agent.
func NotFound(op, kind, id string) *Error {
	return &Error{Code: CodeNotFound, Op: op,
		Message: fmt.Sprintf("%s not found: %s", kind, id), Err: ErrNotFound}
}

// LockContention reports a live advisory lock held by another locker.
// The holder and acquisition time ride in Detail for the client.
func LockContention(op, sessionID, lockedBy, lockedAt string) *Error {
	e := &Error{Code: CodeLockContention, Op: op,
		Message: fmt.Sprintf("session %s is locked by %s since %s", sessionID, lockedBy, lockedAt),
		Err:     ErrLocked}
	return e.WithDetail("locked_by", lockedBy).WithDetail("locked_at", lockedAt)
}

// InvalidStatus reports a status value outside the allowed enum.
func InvalidStatus(op, status string) *Error {
	return &Error{Code: CodeInvalidStatus, Op: op,
		Message: fmt.Sprintf("invalid status: %s", status)}
}

// CodeOf extracts the code through wrap chains. Unknown errors map to the
// processing code so the wire never shows an uncoded failure.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeProcessing
}

// DetailOf returns the structured fields of a coded error, or nil.
func DetailOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return nil
}

// IsNotFound reports whether err carries the not-found sentinel.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsLocked reports whether err carries the lock-contention sentinel.
func IsLocked(err error) bool { return errors.Is(err, ErrLocked) }

// LockInfo extracts (locked_by, locked_at, ok) from a lock-contention error.
func LockInfo(err error) (string, string, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Code != CodeLockContention {
		return "", "", false
	}
	by, _ := e.Detail["locked_by"].(string)
	at, _ := e.Detail["locked_at"].(string)
	return by, at, true
}
