package repositories

import "fmt"

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
	kindUnavailable
)

// StoreError is the RepositoryError produced by non-Firestore backends.
type StoreError struct {
	Op   string
	Msg  string
	kind errorKind
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// NewNotFoundError reports a missing record.
func NewNotFoundError(op, msg string) *StoreError {
	return &StoreError{Op: op, Msg: msg, kind: kindNotFound}
}

// NewConflictError reports a failed precondition or duplicate key.
func NewConflictError(op, msg string) *StoreError {
	return &StoreError{Op: op, Msg: msg, kind: kindConflict}
}

// NewUnavailableError reports a backend that cannot serve the call.
func NewUnavailableError(op, msg string) *StoreError {
	return &StoreError{Op: op, Msg: msg, kind: kindUnavailable}
}
