// Package errors provides the categorized WatchError used at component
// boundaries so the CLI can log failures with context and, when asked, map
// them to exit codes.
package errors

import (
	stdErrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Category classifies a failure of one watch run.
type Category string

const (
	// CategoryConfig is a missing or invalid required setting. Nothing has
	// been acquired when it is raised.
	CategoryConfig Category = "config"

	// Authentication and page-interaction failures. All are terminal for
	// the current run.
	CategoryAmbiguousAuth   Category = "ambiguous_auth"
	CategoryTimeout         Category = "timeout"
	CategoryElementNotFound Category = "element_not_found"
	CategoryUnexpectedUI    Category = "unexpected_ui"

	// CategoryNotification is a webhook delivery that exhausted its attempts.
	CategoryNotification Category = "notification"

	CategoryFileSystem Category = "filesystem"
	CategoryInternal   Category = "internal"
)

// ContextFields carries diagnostic key/value pairs.
type ContextFields map[string]any

// WatchError is a failure with a category and diagnostic context.
type WatchError struct {
	Category Category
	Message  string
	Cause    error
	Context  ContextFields
}

func (e *WatchError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Category))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *WatchError) Unwrap() error {
	return e.Cause
}

// WithContext adds a context field and returns the error for chaining.
func (e *WatchError) WithContext(key string, value any) *WatchError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a WatchError without a cause.
func New(category Category, message string) *WatchError {
	return &WatchError{Category: category, Message: message}
}

// Wrap creates a WatchError around cause.
func Wrap(cause error, category Category, message string) *WatchError {
	return &WatchError{Category: category, Message: message, Cause: cause}
}

// As finds the first WatchError in err's chain.
func As(err error) (*WatchError, bool) {
	var we *WatchError
	if stdErrors.As(err, &we) {
		return we, true
	}
	return nil, false
}

// CategoryOf returns the category of the first WatchError in err's chain,
// or CategoryInternal for any other non-nil error.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	if we, ok := As(err); ok {
		return we.Category
	}
	return CategoryInternal
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category Category) bool {
	return err != nil && CategoryOf(err) == category
}
