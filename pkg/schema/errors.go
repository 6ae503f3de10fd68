package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an aspect or entity lookup misses
	ErrNotFound = errors.New("not found")

	// ErrDuplicateAspect is returned when an aspect name is registered twice
	ErrDuplicateAspect = errors.New("duplicate aspect")

	// ErrDuplicateEntity is returned when an entity name is defined twice
	ErrDuplicateEntity = errors.New("duplicate entity")

	// ErrUnknownAspect is returned when an entity lists an unregistered aspect
	ErrUnknownAspect = errors.New("unknown aspect")

	// ErrMissingKeyAspect is returned when an entity's key aspect is not registered
	ErrMissingKeyAspect = errors.New("missing key aspect")

	// ErrInvalidField is returned when a field violates schema integrity
	ErrInvalidField = errors.New("invalid field")
)

// NotFoundError reports a lookup of an unknown aspect or entity
type NotFoundError struct {
	Kind string // "aspect" or "entity"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DuplicateAspectError reports a registration conflict on an aspect name
type DuplicateAspectError struct {
	Name string
}

func (e *DuplicateAspectError) Error() string {
	return fmt.Sprintf("aspect %s is already registered", e.Name)
}

func (e *DuplicateAspectError) Is(target error) bool { return target == ErrDuplicateAspect }

// DuplicateEntityError reports a registration conflict on an entity name
type DuplicateEntityError struct {
	Name string
}

func (e *DuplicateEntityError) Error() string {
	return fmt.Sprintf("entity %s is already defined", e.Name)
}

func (e *DuplicateEntityError) Is(target error) bool { return target == ErrDuplicateEntity }

// UnknownAspectError reports an entity listing an aspect that is not registered
type UnknownAspectError struct {
	Entity string
	Aspect string
}

func (e *UnknownAspectError) Error() string {
	return fmt.Sprintf("entity %s references unknown aspect %s", e.Entity, e.Aspect)
}

func (e *UnknownAspectError) Is(target error) bool { return target == ErrUnknownAspect }

// MissingKeyAspectError reports an entity whose key aspect is not registered
type MissingKeyAspectError struct {
	Entity    string
	KeyAspect string
}

func (e *MissingKeyAspectError) Error() string {
	if e.KeyAspect == "" {
		return fmt.Sprintf("entity %s declares no key aspect", e.Entity)
	}
	return fmt.Sprintf("entity %s key aspect %s is not registered", e.Entity, e.KeyAspect)
}

func (e *MissingKeyAspectError) Is(target error) bool { return target == ErrMissingKeyAspect }

// InvalidFieldError reports a field that breaks schema integrity
type InvalidFieldError struct {
	Aspect string
	Path   string // dotted path of the offending field
	Reason string
}

func (e *InvalidFieldError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("aspect %s: %s", e.Aspect, e.Reason)
	}
	return fmt.Sprintf("aspect %s: field %s: %s", e.Aspect, e.Path, e.Reason)
}

func (e *InvalidFieldError) Is(target error) bool { return target == ErrInvalidField }

// IsNotFound reports whether err is (or wraps) a NotFoundError
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
