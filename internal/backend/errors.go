package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBackendType is returned when a factory is built over a type
	// that does not implement Backend.
	ErrInvalidBackendType = errors.New("backend: type does not implement Backend")

	// ErrConstruction matches every *ConstructionError.
	ErrConstruction = errors.New("backend: construction failed")
)

// ConstructionError reports a failed backend construction for an endpoint.
type ConstructionError struct {
	Endpoint Endpoint
	Err      error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("backend: construct %s: %v", e.Endpoint, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

func (e *ConstructionError) Is(target error) bool { return target == ErrConstruction }
