// Package store persists tool invocations and usage events in SQLite.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the database file could not be used.
	ErrUnavailable = errors.New("database unavailable")

	// ErrDuplicateID means a row with the same primary key exists.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrCorruptRow means a stored column could not be decoded.
	ErrCorruptRow = errors.New("corrupt row")

	// ErrTxFailed means a transaction could not be committed or rolled back.
	ErrTxFailed = errors.New("transaction failed")
)

// OpError is returned by store methods. Kind is one of the sentinels above,
// or nil for a plain driver failure.
type OpError struct {
	Op    string
	Table string
	ID    string
	Kind  error
	Err   error
}

func (e *OpError) Error() string {
	where := e.Op
	if e.Table != "" {
		where += " " + e.Table
	}
	if e.ID != "" {
		where += " " + e.ID
	}
	switch {
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", where, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", where, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", where, e.Kind, e.Err)
}

// Unwrap exposes both Kind and Err to errors.Is.
func (e *OpError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
