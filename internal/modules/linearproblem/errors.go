package linearproblem

import (
	"errors"
	"fmt"
)

var (
	// ErrNotCreated is matched by every NotCreatedError.
	ErrNotCreated = errors.New("not created")
	// ErrAlreadyCreated is returned when a name is registered twice.
	ErrAlreadyCreated = errors.New("already created")
	// ErrNotFilled is returned when a problem is refreshed before its first fill.
	ErrNotFilled = errors.New("linear problem has not been filled yet")
)

// NotCreatedError reports a lookup of a variable or constraint that does not exist.
type NotCreatedError struct {
	Kind string
	Name string
}

func (e *NotCreatedError) Error() string {
	return fmt.Sprintf("%s %s has not been created yet", e.Kind, e.Name)
}

func (e *NotCreatedError) Is(target error) bool {
	return target == ErrNotCreated
}

func variableNotCreated(name string) error {
	return &NotCreatedError{Kind: "Variable", Name: name}
}

func constraintNotCreated(name string) error {
	return &NotCreatedError{Kind: "Constraint", Name: name}
}
