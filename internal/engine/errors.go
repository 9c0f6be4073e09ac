package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotDefined marks a dependency on a name no cell currently defines.
// It is always wrapped in a DependencyError.
var ErrNotDefined = errors.New("not defined")

// ErrEmptyStream marks a stream that closed before emitting a value.
var ErrEmptyStream = errors.New("stream ended without a value")

// CyclicDefinitionError is returned by Define and Redefine when the new
// definition would make the variable reachable from itself. The module is
// left unchanged.
type CyclicDefinitionError struct {
	// Members lists the output names on the cycle, starting and ending
	// with the variable being defined.
	Members []string
}

func (e *CyclicDefinitionError) Error() string {
	return fmt.Sprintf("cyclic definition: %s", strings.Join(e.Members, " -> "))
}

// DuplicateOutputError is returned by Define when the output name is
// already defined. Replacing an existing definition must go through
// Redefine.
type DuplicateOutputError struct {
	Name string
}

func (e *DuplicateOutputError) Error() string {
	return fmt.Sprintf("output %q is already defined", e.Name)
}

// DependencyError rejects a variable because one of its inputs is rejected
// or unbound. It wraps the input's own error, so rejection chains unwrap
// all the way back to the origin failure.
type DependencyError struct {
	// Input is the name of the failing input.
	Input string
	Err   error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("input %q: %v", e.Input, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// ComputeError rejects a variable because its own compute function failed
// or panicked.
type ComputeError struct {
	// Cell is the output name of the failing cell, or "" for an anonymous
	// cell.
	Cell string
	Err  error
}

func (e *ComputeError) Error() string {
	if e.Cell == "" {
		return fmt.Sprintf("compute failed: %v", e.Err)
	}
	return fmt.Sprintf("computing %q: %v", e.Cell, e.Err)
}

func (e *ComputeError) Unwrap() error {
	return e.Err
}
