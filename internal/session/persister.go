// Package session keeps the portal login alive between runs by turning the
// portal's session cookies into persistent ones before the browser closes.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lance13c/portalwatch/internal/browser"
	"github.com/lance13c/portalwatch/internal/logging"
)

const (
	// DefaultLifetime is how long a rewritten cookie stays valid.
	DefaultLifetime = 72 * time.Hour
	// Budget bounds the whole persistence step.
	Budget = 10 * time.Second
)

// Persister rewrites session cookies of one domain with a fixed lifetime.
type Persister struct {
	Domain   string
	Lifetime time.Duration
	Now      func() time.Time
}

// NewPersister returns a persister for domain with the default lifetime.
func NewPersister(domain string) *Persister {
	return &Persister{
		Domain:   strings.ToLower(strings.TrimPrefix(domain, ".")),
		Lifetime: DefaultLifetime,
		Now:      time.Now,
	}
}

// Extend gives every session cookie of the portal domain an expiry of
// now + Lifetime and writes it back. Cookies that already expire are left
// alone. It runs on a context detached from ctx's cancellation so it still
// completes while the run is being torn down. A cookie the browser refuses
// does not stop the others. It returns how many cookies were rewritten and
// the joined write failures.
func (p *Persister) Extend(ctx context.Context, s browser.Surface) (int, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), Budget)
	defer cancel()

	cookies, err := s.Cookies(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read cookies: %w", err)
	}

	expires := p.Now().Add(p.Lifetime)
	n := 0
	var errs []error
	for _, c := range cookies {
		if !c.IsSession() || !p.owns(c.Domain) {
			continue
		}
		c.Expires = expires
		if err := s.SetCookie(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("failed to persist cookie %s: %w", c.Name, err))
			continue
		}
		n++
	}

	logging.Info("[SESSION] persisted %d session cookie(s) for %s until %s", n, p.Domain, expires.Format(time.RFC3339))
	return n, errors.Join(errs...)
}

func (p *Persister) owns(cookieDomain string) bool {
	d := strings.ToLower(strings.TrimPrefix(cookieDomain, "."))
	return d == p.Domain || strings.HasSuffix(d, "."+p.Domain)
}
