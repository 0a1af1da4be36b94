package util

import (
	"errors"
	"fmt"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrLikeNotFound     = errors.New("no like found")
	ErrAlreadyLiked     = errors.New("already liked")
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError 输入不合法，Message 可直接展示给用户
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StoreError wraps a persistence failure. Nothing of the failed operation was committed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: store failure: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsDomainError reports whether err belongs to the Q&A error taxonomy and
// should be returned to the caller as is.
func IsDomainError(err error) bool {
	var ve *ValidationError
	var se *StoreError
	switch {
	case errors.As(err, &ve), errors.As(err, &se):
		return true
	case errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrLikeNotFound),
		errors.Is(err, ErrAlreadyLiked),
		errors.Is(err, ErrPermissionDenied):
		return true
	}
	return false
}

// WrapStoreError keeps taxonomy errors untouched and wraps everything else
// as a StoreError for op.
func WrapStoreError(op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
