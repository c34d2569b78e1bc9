package ode

import (
	"fmt"

	"github.com/tphakala/odeflow/internal/errors"
)

const componentName = "ode"

var (
	// ErrDuplicateName is returned when a name is already registered.
	ErrDuplicateName = errors.NewStd("name already in use")
	// ErrNotFound is returned for an unknown trigger, action or area name.
	ErrNotFound = errors.NewStd("name not found")
	// ErrInUse is returned when removing an action or area a trigger still references.
	ErrInUse = errors.NewStd("still referenced by a trigger")
	// ErrInvalidParameter is returned for out-of-range settings.
	ErrInvalidParameter = errors.NewStd("invalid parameter")
	// ErrUnresolved is reported when an action's target cannot be found at fire time.
	ErrUnresolved = errors.NewStd("unresolved reference")
)

func newError(sentinel error, category errors.Category, format string, args ...any) *errors.EnhancedError {
	return errors.Newf("%s: %w", fmt.Sprintf(format, args...), sentinel).
		Component(componentName).
		Category(category).
		Build()
}

func duplicateName(what, name string) error {
	return newError(ErrDuplicateName, errors.CategoryConflict, "%s %q", what, name)
}

func notFound(what, name string) error {
	return newError(ErrNotFound, errors.CategoryNotFound, "%s %q", what, name)
}

func invalidParam(format string, args ...any) error {
	return newError(ErrInvalidParameter, errors.CategoryValidation, format, args...)
}
