// Package errors provides enhanced errors that carry a component, a category
// and structured context, plus pass-throughs to the standard errors package so
// callers only need one import.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Category classifies an error for handling and reporting.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryConfiguration Category = "configuration"
	CategoryConflict      Category = "conflict"
	CategoryNotFound      Category = "not-found"
	CategoryRuntime       Category = "runtime"
	CategoryNetwork       Category = "network"
	CategoryDatabase      Category = "database"
	CategoryFileIO        Category = "file-io"
	CategoryGeneric       Category = "generic"
)

// EnhancedError wraps an underlying error with reporting metadata.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
	timestamp time.Time
}

func (e *EnhancedError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

func (e *EnhancedError) Unwrap() error { return e.Err }

// GetComponent returns the component that produced the error.
func (e *EnhancedError) GetComponent() string { return e.component }

// GetCategory returns the error category.
func (e *EnhancedError) GetCategory() Category { return e.category }

// GetContext returns a copy of the structured context.
func (e *EnhancedError) GetContext() map[string]any {
	return maps.Clone(e.context)
}

// GetTimestamp returns when the error was built.
func (e *EnhancedError) GetTimestamp() time.Time { return e.timestamp }

// Describe renders the error with its component and context for logs.
func (e *EnhancedError) Describe() string {
	var b strings.Builder
	if e.component != "" {
		fmt.Fprintf(&b, "[%s] ", e.component)
	}
	b.WriteString(e.Error())
	if len(e.context) > 0 {
		keys := make([]string, 0, len(e.context))
		for k := range e.context {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.context[k])
		}
		b.WriteString(")")
	}
	return b.String()
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  Category
	context   map[string]any
}

// New starts a builder around an existing error.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err, category: CategoryGeneric}
}

// Newf starts a builder around a freshly formatted error. %w verbs wrap as usual.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the producing component.
func (b *ErrorBuilder) Component(component string) *ErrorBuilder {
	b.component = component
	return b
}

// Category sets the error category.
func (b *ErrorBuilder) Category(category Category) *ErrorBuilder {
	b.category = category
	return b
}

// Context adds a key/value pair of structured context.
func (b *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build finalizes the error and hands it to the registered reporter, if any.
func (b *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       b.err,
		component: b.component,
		category:  b.category,
		context:   b.context,
		timestamp: time.Now(),
	}
	if r := currentReporter(); r != nil {
		r(ee)
	}
	return ee
}

// Reporter receives every built EnhancedError. Used for telemetry.
type Reporter func(*EnhancedError)

var (
	reporter   Reporter
	reporterMu sync.RWMutex
)

// SetReporter installs the telemetry reporter. Passing nil disables reporting.
func SetReporter(r Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
}

func currentReporter() Reporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return reporter
}

// NewStd creates a plain sentinel error.
func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool     { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
func Unwrap(err error) error        { return stderrors.Unwrap(err) }
func Join(errs ...error) error      { return stderrors.Join(errs...) }

// CategoryOf returns the category of the first EnhancedError in err's chain.
func CategoryOf(err error) Category {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.category
	}
	return CategoryGeneric
}
