// Package browsertest provides an in-memory browser.Surface for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lance13c/portalwatch/internal/browser"
)

// Element is a fake DOM element.
type Element struct {
	Text    string
	Options []string // option values for select controls
	Count   int      // number of matches for Count; 0 means 1
}

// Fake is a scriptable Surface. Tests populate Elements and hook OnClick
// and OnNavigate to move the fake between pages.
type Fake struct {
	mu sync.Mutex

	URL        string
	Elements   map[string]*Element
	CookieJar  []browser.Cookie
	OnNavigate func(f *Fake, url string)
	OnClick    map[string]func(f *Fake)
	// Errors makes the named method fail, e.g. Errors["SetCookie"].
	Errors map[string]error

	Calls    []string
	Typed    map[string]string
	Selected map[string]string
	Closed   bool
}

// New returns an empty fake at about:blank.
func New() *Fake {
	return &Fake{
		URL:      "about:blank",
		Elements: map[string]*Element{},
		OnClick:  map[string]func(*Fake){},
		Errors:   map[string]error{},
		Typed:    map[string]string{},
		Selected: map[string]string{},
	}
}

// Show adds (or replaces) an element with the given text.
func (f *Fake) Show(selector, text string) *Element {
	el := &Element{Text: text}
	f.Elements[selector] = el
	return el
}

// Hide removes an element.
func (f *Fake) Hide(selector string) {
	delete(f.Elements, selector)
}

// Called reports whether any recorded call starts with prefix.
func (f *Fake) Called(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (f *Fake) record(format string, args ...interface{}) error {
	call := fmt.Sprintf(format, args...)
	f.Calls = append(f.Calls, call)
	method := call
	if i := strings.IndexByte(call, ' '); i >= 0 {
		method = call[:i]
	}
	return f.Errors[method]
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	if err := f.record("Navigate %s", url); err != nil {
		f.mu.Unlock()
		return err
	}
	f.URL = url
	hook := f.OnNavigate
	f.mu.Unlock()

	if hook != nil {
		hook(f, url)
	}
	return nil
}

func (f *Fake) WaitFirst(ctx context.Context, timeout time.Duration, selectors ...string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("WaitFirst %s", strings.Join(selectors, ",")); err != nil {
		return -1, err
	}
	for i, sel := range selectors {
		if _, ok := f.Elements[sel]; ok {
			return i, nil
		}
	}
	return -1, browser.ErrTimeout
}

func (f *Fake) WaitLocation(ctx context.Context, timeout time.Duration, match func(string) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("WaitLocation"); err != nil {
		return err
	}
	if match(f.URL) {
		return nil
	}
	return browser.ErrTimeout
}

func (f *Fake) Location(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.URL, f.Errors["Location"]
}

func (f *Fake) Text(ctx context.Context, selector string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Text %s", selector); err != nil {
		return "", err
	}
	el, ok := f.Elements[selector]
	if !ok {
		return "", fmt.Errorf("%s: %w", selector, browser.ErrNotFound)
	}
	return el.Text, nil
}

func (f *Fake) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	if err := f.record("Click %s", selector); err != nil {
		f.mu.Unlock()
		return err
	}
	if _, ok := f.Elements[selector]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("%s: %w", selector, browser.ErrNotFound)
	}
	hook := f.OnClick[selector]
	f.mu.Unlock()

	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *Fake) Type(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Type %s", selector); err != nil {
		return err
	}
	if _, ok := f.Elements[selector]; !ok {
		return fmt.Errorf("%s: %w", selector, browser.ErrNotFound)
	}
	f.Typed[selector] += text
	return nil
}

func (f *Fake) SelectValue(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SelectValue %s %s", selector, value); err != nil {
		return err
	}
	el, ok := f.Elements[selector]
	if !ok {
		return fmt.Errorf("%s: %w", selector, browser.ErrNotFound)
	}
	for _, opt := range el.Options {
		if opt == value {
			f.Selected[selector] = value
			return nil
		}
	}
	return fmt.Errorf("option %q in %s: %w", value, selector, browser.ErrNotFound)
}

func (f *Fake) Count(ctx context.Context, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Count %s", selector); err != nil {
		return 0, err
	}
	el, ok := f.Elements[selector]
	if !ok {
		return 0, nil
	}
	if el.Count == 0 {
		return 1, nil
	}
	return el.Count, nil
}

func (f *Fake) HTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("HTML"); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<html><body>")
	for sel, el := range f.Elements {
		fmt.Fprintf(&b, "<div data-selector=%q>%s</div>", sel, el.Text)
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

func (f *Fake) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Cookies"); err != nil {
		return nil, err
	}
	out := make([]browser.Cookie, len(f.CookieJar))
	copy(out, f.CookieJar)
	return out, nil
}

// SetCookie replaces a cookie with the same name, domain and path, or adds it.
func (f *Fake) SetCookie(ctx context.Context, c browser.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetCookie %s", c.Name); err != nil {
		return err
	}
	for i, existing := range f.CookieJar {
		if existing.Name == c.Name && existing.Domain == c.Domain && existing.Path == c.Path {
			f.CookieJar[i] = c
			return nil
		}
	}
	f.CookieJar = append(f.CookieJar, c)
	return nil
}

func (f *Fake) ClearCookies(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ClearCookies"); err != nil {
		return err
	}
	f.CookieJar = nil
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return f.record("Close")
}

var _ browser.Surface = (*Fake)(nil)
