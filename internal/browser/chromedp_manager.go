package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/lance13c/portalwatch/internal/logging"
)

const (
	navigateTimeout = 30 * time.Second
	actionTimeout   = 10 * time.Second
	pollInterval    = 200 * time.Millisecond
)

// Options selects how Chrome is started or reached.
type Options struct {
	Headless bool
	// RemoteURL connects to an already running browser instead of starting one.
	RemoteURL string
	// ProfileDir is the user-data dir; it keeps cookies between runs.
	ProfileDir string
	// ExecPath overrides Chrome discovery.
	ExecPath string
}

// ChromeSurface implements Surface over a single chromedp browser tab.
type ChromeSurface struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	remote      bool
}

// findChrome attempts to find a Chrome executable.
func findChrome() (string, error) {
	var paths []string

	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "linux":
		paths = []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, path := range paths {
		if runtime.GOOS == "darwin" {
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		} else if resolved, err := exec.LookPath(path); err == nil {
			return resolved, nil
		}
	}

	if path, err := exec.LookPath("chrome"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("Chrome browser not found. Please install Chrome or Chromium, or pass --remote")
}

// FindChrome exposes Chrome discovery for diagnostics.
func FindChrome() (string, error) {
	return findChrome()
}

// NewChromeSurface starts Chrome (or attaches to RemoteURL) and opens a tab.
// The browser outlives cancellation of ctx so teardown can still run; call
// Close to release it.
func NewChromeSurface(ctx context.Context, opts Options) (*ChromeSurface, error) {
	base := context.WithoutCancel(ctx)

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		wsURL, err := ResolveRemote(ctx, opts.RemoteURL)
		if err != nil {
			return nil, err
		}
		logging.Info("Using remote Chrome at %s", wsURL)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(base, wsURL, chromedp.NoModifyURL)
	} else {
		chromePath := opts.ExecPath
		if chromePath == "" {
			var err error
			if chromePath, err = findChrome(); err != nil {
				return nil, err
			}
		}
		logging.Info("Using Chrome from: %s (headless=%t)", chromePath, opts.Headless)

		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.ExecPath(chromePath),
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.WindowSize(1280, 900),
		)
		if opts.ProfileDir != "" {
			if err := os.MkdirAll(opts.ProfileDir, 0700); err != nil {
				return nil, fmt.Errorf("failed to create profile dir: %w", err)
			}
			execOpts = append(execOpts, chromedp.UserDataDir(opts.ProfileDir))
		}
		if !opts.Headless {
			execOpts = append(execOpts, chromedp.Flag("headless", false))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(base, execOpts...)
	}

	tabCtx, cancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, v ...interface{}) {
			logging.Debug("[Chrome] "+format, v...)
		}),
	)

	// Start the browser without a timeout context; a timeout here would
	// tear down the whole instance when it fires.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	return &ChromeSurface{
		allocCancel: allocCancel,
		ctx:         tabCtx,
		cancel:      cancel,
		remote:      opts.RemoteURL != "",
	}, nil
}

// scoped derives a context on the tab that ends at timeout or when ctx ends.
func (s *ChromeSurface) scoped(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Navigate loads url and waits for the load event.
func (s *ChromeSurface) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.scoped(ctx, navigateTimeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		if s.ctx.Err() != nil {
			return fmt.Errorf("Chrome context was cancelled")
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (s *ChromeSurface) eval(ctx context.Context, expr string, res interface{}) error {
	return s.evalWithin(ctx, actionTimeout, expr, res)
}

func (s *ChromeSurface) evalWithin(ctx context.Context, timeout time.Duration, expr string, res interface{}) error {
	runCtx, cancel := s.scoped(ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Evaluate(expr, res))
}

// pollBudget bounds a single poll so a hung call cannot outlast deadline.
func pollBudget(deadline time.Time) time.Duration {
	return max(min(actionTimeout, time.Until(deadline)), 0)
}

// firstPresent returns the index of the first selector matching an element, or -1.
func (s *ChromeSurface) firstPresent(ctx context.Context, timeout time.Duration, selectors []string) (int, error) {
	list, _ := json.Marshal(selectors)
	expr := fmt.Sprintf(`(() => {
		const sels = %s;
		for (let i = 0; i < sels.length; i++) {
			if (document.querySelector(sels[i])) return i;
		}
		return -1;
	})()`, list)

	var idx int
	if err := s.evalWithin(ctx, timeout, expr, &idx); err != nil {
		return -1, err
	}
	return idx, nil
}

// WaitFirst polls until one selector matches. Evaluation errors during page
// transitions are retried until the deadline.
func (s *ChromeSurface) WaitFirst(ctx context.Context, timeout time.Duration, selectors ...string) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		idx, err := s.firstPresent(ctx, pollBudget(deadline), selectors)
		if err == nil && idx >= 0 {
			return idx, nil
		}
		if err != nil {
			logging.Debug("[Chrome] presence check failed: %v", err)
		}
		if time.Now().After(deadline) {
			return -1, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Location returns the current page URL.
func (s *ChromeSurface) Location(ctx context.Context) (string, error) {
	return s.locationWithin(ctx, actionTimeout)
}

func (s *ChromeSurface) locationWithin(ctx context.Context, timeout time.Duration) (string, error) {
	runCtx, cancel := s.scoped(ctx, timeout)
	defer cancel()

	var url string
	err := chromedp.Run(runCtx, chromedp.Location(&url))
	return url, err
}

// WaitLocation polls the current URL until match accepts it.
func (s *ChromeSurface) WaitLocation(ctx context.Context, timeout time.Duration, match func(string) bool) error {
	deadline := time.Now().Add(timeout)
	for {
		url, err := s.locationWithin(ctx, pollBudget(deadline))
		if err == nil && match(url) {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

type textResult struct {
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

// Text returns innerText, falling back to value for inputs and buttons.
func (s *ChromeSurface) Text(ctx context.Context, selector string) (string, error) {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return {found: false, text: ""};
		return {found: true, text: (el.innerText || el.value || el.textContent || "").trim()};
	})()`, jsString(selector))

	var res textResult
	if err := s.eval(ctx, expr, &res); err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", selector, err)
	}
	if !res.Found {
		return "", fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return res.Text, nil
}

// Click dispatches a DOM click, which also works on elements covered by
// overlays.
func (s *ChromeSurface) Click(ctx context.Context, selector string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.click();
		return true;
	})()`, jsString(selector))

	var clicked bool
	if err := s.eval(ctx, expr, &clicked); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	if !clicked {
		return fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return nil
}

// Type focuses the element and sends text as key events.
func (s *ChromeSurface) Type(ctx context.Context, selector, text string) error {
	if _, err := s.Text(ctx, selector); err != nil {
		return err
	}

	runCtx, cancel := s.scoped(ctx, actionTimeout)
	defer cancel()

	return chromedp.Run(runCtx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// SelectValue sets a select control to the option with value and fires
// the input and change events.
func (s *ChromeSurface) SelectValue(ctx context.Context, selector, value string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return "missing";
		const v = %s;
		if (!Array.from(el.options || []).some(o => o.value === v)) return "no-option";
		el.value = v;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return "ok";
	})()`, jsString(selector), jsString(value))

	var status string
	if err := s.eval(ctx, expr, &status); err != nil {
		return fmt.Errorf("failed to select %q in %s: %w", value, selector, err)
	}
	switch status {
	case "ok":
		return nil
	case "no-option":
		return fmt.Errorf("option %q in %s: %w", value, selector, ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
}

// HTML returns the serialized document.
func (s *ChromeSurface) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.scoped(ctx, actionTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(runCtx, chromedp.OuterHTML(`html`, &html, chromedp.ByQuery))
	return html, err
}

// Count parses the current document and counts elements matching selector.
func (s *ChromeSurface) Count(ctx context.Context, selector string) (int, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read page: %w", err)
	}
	return CountMatches(html, selector)
}

// Cookies returns every cookie in the browser.
func (s *ChromeSurface) Cookies(ctx context.Context) ([]Cookie, error) {
	runCtx, cancel := s.scoped(ctx, actionTimeout)
	defer cancel()

	var raw []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, fromNetworkCookie(c))
	}
	return cookies, nil
}

func fromNetworkCookie(c *network.Cookie) Cookie {
	out := Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: string(c.SameSite),
	}
	if !c.Session && c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		out.Expires = time.Unix(int64(sec), int64(frac*1e9))
	}
	return out
}

// SetCookie writes c; a zero Expires writes a session cookie.
func (s *ChromeSurface) SetCookie(ctx context.Context, c Cookie) error {
	runCtx, cancel := s.scoped(ctx, actionTimeout)
	defer cancel()

	params := network.SetCookie(c.Name, c.Value).
		WithDomain(c.Domain).
		WithPath(c.Path).
		WithSecure(c.Secure).
		WithHTTPOnly(c.HTTPOnly)
	if c.SameSite != "" {
		params = params.WithSameSite(network.CookieSameSite(c.SameSite))
	}
	if !c.Expires.IsZero() {
		exp := cdp.TimeSinceEpoch(c.Expires)
		params = params.WithExpires(&exp)
	}

	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return params.Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
	}
	return nil
}

// ClearCookies removes all browser cookies.
func (s *ChromeSurface) ClearCookies(ctx context.Context) error {
	runCtx, cancel := s.scoped(ctx, actionTimeout)
	defer cancel()

	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.ClearBrowserCookies().Do(ctx)
	}))
}

// Close shuts the browser down gracefully so the profile is flushed to
// disk. For a remote browser only the tab is closed.
func (s *ChromeSurface) Close() error {
	var err error
	if s.ctx != nil {
		closeCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
		err = chromedp.Cancel(closeCtx)
		cancel()
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	if s.remote {
		logging.Info("Closed tab on remote Chrome")
	} else {
		logging.Info("Chrome closed")
	}
	return err
}
