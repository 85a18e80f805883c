// Package auth establishes an authenticated portal session, either by
// reusing the cookies of the persistent browser profile or by driving the
// SSO login with username, password and a TOTP code.
package auth

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lance13c/portalwatch/internal/browser"
	"github.com/lance13c/portalwatch/internal/config"
	"github.com/lance13c/portalwatch/internal/credentials"
	"github.com/lance13c/portalwatch/internal/errors"
	"github.com/lance13c/portalwatch/internal/logging"
)

// State is a step of the authentication flow.
type State int

const (
	StateStart State = iota
	StateCheckLoggedIn
	StateNeedLogin
	StateCredentialsSubmitted
	StateMFAChallenge
	StateMFASubmitted
	StateLoggedIn
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateCheckLoggedIn:
		return "CheckLoggedIn"
	case StateNeedLogin:
		return "NeedLogin"
	case StateCredentialsSubmitted:
		return "CredentialsSubmitted"
	case StateMFAChallenge:
		return "MFAChallenge"
	case StateMFASubmitted:
		return "MFASubmitted"
	case StateLoggedIn:
		return "LoggedIn"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateLoggedIn || s == StateFailed
}

// Probe is the outcome of the logged-in check.
type Probe int

const (
	ProbeAmbiguous Probe = iota
	ProbeAuthenticated
	ProbeNeedsLogin
)

func (p Probe) String() string {
	switch p {
	case ProbeAuthenticated:
		return "authenticated"
	case ProbeNeedsLogin:
		return "needs_login"
	default:
		return "ambiguous"
	}
}

// Path tells how the session was obtained.
type Path string

const (
	PathCached Path = "cached"
	PathLogin  Path = "login"
)

// Result describes one authentication attempt.
type Result struct {
	Path  Path
	Trace []State
}

// Final returns the last visited state.
func (r Result) Final() State {
	if len(r.Trace) == 0 {
		return StateStart
	}
	return r.Trace[len(r.Trace)-1]
}

// CodeSource yields the current one-time code.
type CodeSource interface {
	GenerateCode() (string, error)
}

var _ CodeSource = (*credentials.Provider)(nil)

// Authenticator runs the login state machine against a browser surface.
type Authenticator struct {
	portal   config.PortalConfig
	creds    credentials.Credentials
	codes    CodeSource
	timeouts config.TimeoutsConfig
}

// New returns an authenticator for cfg that takes codes from codes.
func New(cfg *config.Config, codes CodeSource) *Authenticator {
	return &Authenticator{
		portal:   cfg.Portal,
		creds:    cfg.Credentials,
		codes:    codes,
		timeouts: cfg.Timeouts,
	}
}

type step func(ctx context.Context, s browser.Surface) (State, error)

// Authenticate drives s from Start to LoggedIn. On failure the returned
// error is a categorized WatchError and the trace ends in Failed. There is
// no retry within a run.
func (a *Authenticator) Authenticate(ctx context.Context, s browser.Surface) (Result, error) {
	res := Result{Path: PathCached}
	steps := map[State]step{
		StateStart:                a.start,
		StateCheckLoggedIn:        a.checkLoggedIn,
		StateNeedLogin:            a.needLogin,
		StateCredentialsSubmitted: a.submitCredentials,
		StateMFAChallenge:         a.answerChallenge,
		StateMFASubmitted:         a.submitCode,
	}

	state := StateStart
	for {
		res.Trace = append(res.Trace, state)
		if state == StateNeedLogin {
			res.Path = PathLogin
		}
		if state.Terminal() {
			break
		}

		started := time.Now()
		next, err := steps[state](ctx, s)
		if err != nil {
			logging.Error("[AUTH] %s failed after %v: %v", state, time.Since(started).Round(time.Millisecond), err)
			res.Trace = append(res.Trace, StateFailed)
			return res, err
		}
		logging.Debug("[AUTH] %s -> %s (%v)", state, next, time.Since(started).Round(time.Millisecond))
		state = next
	}

	logging.Info("[AUTH] logged in via %s path", res.Path)
	return res, nil
}

// Probe checks whether the current page shows the authenticated marker or
// the login prompt. Neither within the probe timeout is ambiguous.
func (a *Authenticator) Probe(ctx context.Context, s browser.Surface) (Probe, error) {
	sel := a.portal.Selectors
	idx, err := s.WaitFirst(ctx, a.timeouts.Probe, sel.AuthMarker, sel.LoginLink)
	if stdErrors.Is(err, browser.ErrTimeout) {
		return ProbeAmbiguous, nil
	}
	if err != nil {
		return ProbeAmbiguous, err
	}
	if idx == 0 {
		return ProbeAuthenticated, nil
	}
	return ProbeNeedsLogin, nil
}

func (a *Authenticator) start(ctx context.Context, s browser.Surface) (State, error) {
	if err := s.Navigate(ctx, a.portal.HomeURL); err != nil {
		return StateFailed, errors.Internal("failed to open portal", err).
			WithContext("state", StateStart.String()).
			WithContext("url", a.portal.HomeURL)
	}
	return StateCheckLoggedIn, nil
}

func (a *Authenticator) checkLoggedIn(ctx context.Context, s browser.Surface) (State, error) {
	probe, err := a.Probe(ctx, s)
	if err != nil {
		return StateFailed, errors.Internal("logged-in probe failed", err).
			WithContext("state", StateCheckLoggedIn.String())
	}
	logging.Info("[AUTH] session probe: %s", probe)

	switch probe {
	case ProbeAuthenticated:
		return StateLoggedIn, nil
	case ProbeNeedsLogin:
		return StateNeedLogin, nil
	default:
		return StateFailed, errors.AmbiguousAuthState(a.portal.Selectors.AuthMarker, a.portal.Selectors.LoginLink)
	}
}

func (a *Authenticator) needLogin(ctx context.Context, s browser.Surface) (State, error) {
	const state = StateNeedLogin
	sel, labels := a.portal.Selectors, a.portal.Labels

	if err := s.ClearCookies(ctx); err != nil {
		return StateFailed, errors.Internal("failed to clear cookies", err).
			WithContext("state", state.String())
	}
	if err := a.clickLabeled(ctx, s, state, sel.LoginLink, labels.LoginLink); err != nil {
		return StateFailed, err
	}
	if err := a.waitFor(ctx, s, state, sel.SSOButton); err != nil {
		return StateFailed, err
	}
	if err := a.clickLabeled(ctx, s, state, sel.SSOButton, labels.SSOButton); err != nil {
		return StateFailed, err
	}
	if err := s.WaitLocation(ctx, a.timeouts.Wait, onDomain(a.portal.IdPDomain)); err != nil {
		return StateFailed, a.locationErr(ctx, s, state, "identity provider "+a.portal.IdPDomain, err)
	}
	return StateCredentialsSubmitted, nil
}

func (a *Authenticator) submitCredentials(ctx context.Context, s browser.Surface) (State, error) {
	const state = StateCredentialsSubmitted
	sel := a.portal.Selectors

	if err := a.waitFor(ctx, s, state, sel.Username); err != nil {
		return StateFailed, err
	}
	if err := a.typeInto(ctx, s, state, sel.Username, a.creds.Username); err != nil {
		return StateFailed, err
	}
	if err := a.typeInto(ctx, s, state, sel.Password, a.creds.Password); err != nil {
		return StateFailed, err
	}
	if err := a.clickLabeled(ctx, s, state, sel.LoginSubmit, a.portal.Labels.LoginSubmit); err != nil {
		return StateFailed, err
	}
	return StateMFAChallenge, nil
}

func (a *Authenticator) answerChallenge(ctx context.Context, s browser.Surface) (State, error) {
	const state = StateMFAChallenge
	sel := a.portal.Selectors

	if err := a.waitFor(ctx, s, state, sel.MFADevice); err != nil {
		return StateFailed, err
	}
	if err := s.SelectValue(ctx, sel.MFADevice, a.creds.MFADevice); err != nil {
		return StateFailed, a.elementErr(state, sel.MFADevice, err).
			WithContext("option", a.creds.MFADevice)
	}
	if err := a.clickLabeled(ctx, s, state, sel.MFAProceed, a.portal.Labels.MFAProceed); err != nil {
		return StateFailed, err
	}
	if err := a.waitFor(ctx, s, state, sel.OTPInput); err != nil {
		return StateFailed, err
	}
	return StateMFASubmitted, nil
}

func (a *Authenticator) submitCode(ctx context.Context, s browser.Surface) (State, error) {
	const state = StateMFASubmitted
	sel := a.portal.Selectors

	code, err := a.codes.GenerateCode()
	if err != nil {
		return StateFailed, errors.Internal("failed to generate one-time code", err).
			WithContext("state", state.String())
	}
	if err := a.typeInto(ctx, s, state, sel.OTPInput, code); err != nil {
		return StateFailed, err
	}
	if err := a.clickLabeled(ctx, s, state, sel.OTPSubmit, a.portal.Labels.OTPSubmit); err != nil {
		return StateFailed, err
	}
	if err := s.WaitLocation(ctx, a.timeouts.Wait, onDomain(a.portal.Domain)); err != nil {
		werr := a.locationErr(ctx, s, state, "portal "+a.portal.Domain, err)
		if errors.IsCategory(werr, errors.CategoryTimeout) {
			werr = werr.WithContext("hint", "one-time code may have been rejected")
		}
		return StateFailed, werr
	}
	return StateLoggedIn, nil
}

// clickLabeled clicks selector only after its text contains one of labels.
func (a *Authenticator) clickLabeled(ctx context.Context, s browser.Surface, state State, selector string, labels []string) error {
	text, err := s.Text(ctx, selector)
	if err != nil {
		return a.elementErr(state, selector, err)
	}
	if !matchesLabel(text, labels) {
		return errors.UnexpectedUI(state.String(), selector, labels, strings.TrimSpace(text))
	}
	if err := s.Click(ctx, selector); err != nil {
		return a.elementErr(state, selector, err)
	}
	return nil
}

func (a *Authenticator) typeInto(ctx context.Context, s browser.Surface, state State, selector, text string) error {
	if err := s.Type(ctx, selector, text); err != nil {
		return a.elementErr(state, selector, err)
	}
	return nil
}

func (a *Authenticator) waitFor(ctx context.Context, s browser.Surface, state State, selector string) error {
	if err := browser.WaitPresent(ctx, s, a.timeouts.Wait, selector); err != nil {
		return a.elementErr(state, selector, err)
	}
	return nil
}

// elementErr maps a surface failure around selector to a categorized error.
func (a *Authenticator) elementErr(state State, selector string, err error) *errors.WatchError {
	if stdErrors.Is(err, browser.ErrTimeout) || stdErrors.Is(err, browser.ErrNotFound) {
		return errors.ElementNotFound(state.String(), selector, err)
	}
	return errors.Internal("browser action failed", err).
		WithContext("state", state.String()).
		WithContext("selector", selector)
}

func (a *Authenticator) locationErr(ctx context.Context, s browser.Surface, state State, waitingFor string, err error) *errors.WatchError {
	if !stdErrors.Is(err, browser.ErrTimeout) {
		return errors.Internal("browser wait failed", err).WithContext("state", state.String())
	}
	werr := errors.Timeout(state.String(), waitingFor, err)
	if loc, lerr := s.Location(ctx); lerr == nil {
		werr = werr.WithContext("location", loc)
	}
	return werr
}

func matchesLabel(text string, labels []string) bool {
	text = strings.TrimSpace(text)
	for _, l := range labels {
		if l != "" && strings.Contains(text, l) {
			return true
		}
	}
	return false
}

// onDomain matches URLs whose host is domain or one of its subdomains.
func onDomain(domain string) func(string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	return func(raw string) bool {
		u, err := url.Parse(raw)
		if err != nil {
			return false
		}
		host := strings.ToLower(u.Hostname())
		return host == domain || strings.HasSuffix(host, "."+domain)
	}
}
