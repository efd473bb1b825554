package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRemote     = errors.New("remote error")
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
)

// RemoteError is a transport or server failure on a CRUD or subscribe call.
type RemoteError struct {
	Op     string
	Table  string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Table)
	if e.Status != 0 {
		msg += fmt.Sprintf(": http %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Table string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Table, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func Remote(op, table string, err error) error {
	return &RemoteError{Op: op, Table: table, Err: err}
}

func Invalid(entity, field, reason string) error {
	return &ValidationError{Entity: entity, Field: field, Reason: reason}
}

func NotFound(table, id string) error {
	return &NotFoundError{Table: table, ID: id}
}
