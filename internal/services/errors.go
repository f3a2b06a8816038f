package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mathauscm/api-mybot/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderInvalidTransition indicates the requested status is not reachable from the current one.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderNotFound indicates the order could not be located for the tenant.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates a concurrent modification or a duplicate order number.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the backing store could not be reached in time.
	ErrOrderUnavailable = errors.New("order: dependency unavailable")
)

// FieldError names one offending input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// OrderValidationError collects field level failures. It unwraps to ErrOrderInvalidInput.
type OrderValidationError struct {
	Fields []FieldError
}

func (e *OrderValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrOrderInvalidInput.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrOrderInvalidInput.Error() + ": " + strings.Join(parts, "; ")
}

func (e *OrderValidationError) Unwrap() error { return ErrOrderInvalidInput }

func (e *OrderValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *OrderValidationError) empty() bool { return e == nil || len(e.Fields) == 0 }

func newFieldError(field, format string, args ...any) *OrderValidationError {
	verr := &OrderValidationError{}
	verr.add(field, format, args...)
	return verr
}

// mapRepositoryError converts store failures into the order error kinds.
func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
