package script

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by Import before the registry has been built.
var ErrNotInitialized = errors.New("registry not initialized")

// NotFoundError indicates that no loadable unit was registered under a name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no loadable unit named %q", e.Name)
}

// EvalError indicates that a unit's script failed to compile or execute.
type EvalError struct {
	Name string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("failed to evaluate unit %q: %v", e.Name, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}
