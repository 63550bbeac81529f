package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session id resolves to nothing.
var ErrSessionNotFound = errors.New("migration session not found")

// ErrProjectNotFound is returned when a project id resolves to nothing.
var ErrProjectNotFound = errors.New("migration project not found")

// NoIdentityFieldError means no candidate external-id field exists on an
// object in the given org. By default this is fatal for the object type.
type NoIdentityFieldError struct {
	ObjectType string
	OrgName    string
	Tried      []string
}

func (e *NoIdentityFieldError) Error() string {
	return fmt.Sprintf("no identity field found on %s in org %s (tried %v)", e.ObjectType, e.OrgName, e.Tried)
}

// CircularDependencyError reports a reference cycle among the requested
// object types, naming one type on the cycle.
type CircularDependencyError struct {
	ObjectType string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected involving object type %s", e.ObjectType)
}

// InvalidStateTransitionError reports a disallowed session status change.
type InvalidStateTransitionError struct {
	From SessionStatus
	To   SessionStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid session state transition %s -> %s", e.From, e.To)
}
