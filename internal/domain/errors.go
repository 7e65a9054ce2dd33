package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel matched by every NotFoundError.
var ErrNotFound = errors.New("not found")

// AuthorizationError indicates the acting identity does not own the case.
type AuthorizationError struct {
	CaseID string
	Actor  string
	Owner  string
}

func (e AuthorizationError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("case %s has no owner; %s cannot advance it", e.CaseID, e.Actor)
	}
	return fmt.Sprintf("only the decision owner can advance case %s (actor %s)", e.CaseID, e.Actor)
}

// InvalidTransitionError indicates the target is not the legal successor.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// StorageError wraps a ledger store failure.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

// ExternalCallError wraps a channel sender or reasoning collaborator failure.
type ExternalCallError struct {
	Collaborator string
	Err          error
}

func (e ExternalCallError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Collaborator, e.Err)
}

func (e ExternalCallError) Unwrap() error { return e.Err }

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}
