// Package browser drives a Chrome instance for the watch run.
//
// Components depend on the Surface interface. ChromeSurface implements it
// over chromedp; browsertest provides an in-memory fake.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a bounded wait gives up.
	ErrTimeout = errors.New("browser: wait timed out")
	// ErrNotFound is returned when an element or option is absent.
	ErrNotFound = errors.New("browser: element not found")
)

// Cookie is a browser cookie. A zero Expires marks a session cookie.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// IsSession reports whether the cookie disappears when the browser closes.
func (c Cookie) IsSession() bool {
	return c.Expires.IsZero()
}

// Surface is the set of browser primitives the watch run needs. All
// selectors are CSS selectors.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	// WaitFirst blocks until one of selectors is present and returns its
	// index, or ErrTimeout.
	WaitFirst(ctx context.Context, timeout time.Duration, selectors ...string) (int, error)
	// WaitLocation blocks until match accepts the current URL, or ErrTimeout.
	WaitLocation(ctx context.Context, timeout time.Duration, match func(url string) bool) error
	Location(ctx context.Context) (string, error)

	// Text returns the visible label of an element (its value for inputs).
	Text(ctx context.Context, selector string) (string, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	// SelectValue picks the option with the given value in a select control.
	SelectValue(ctx context.Context, selector, value string) error
	Count(ctx context.Context, selector string) (int, error)
	HTML(ctx context.Context) (string, error)

	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookie(ctx context.Context, c Cookie) error
	ClearCookies(ctx context.Context) error

	Close() error
}

// WaitPresent waits for a single selector.
func WaitPresent(ctx context.Context, s Surface, timeout time.Duration, selector string) error {
	_, err := s.WaitFirst(ctx, timeout, selector)
	return err
}
