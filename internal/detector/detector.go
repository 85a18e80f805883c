// Package detector counts the tracked elements on the watched page and
// alerts when the count differs from the last notified one.
package detector

import (
	"context"
	stdErrors "errors"

	"github.com/lance13c/portalwatch/internal/browser"
	"github.com/lance13c/portalwatch/internal/config"
	"github.com/lance13c/portalwatch/internal/dedup"
	"github.com/lance13c/portalwatch/internal/errors"
	"github.com/lance13c/portalwatch/internal/logging"
	"github.com/lance13c/portalwatch/internal/notify"
)

const stateName = "Detect"

// Outcome is what one check observed and did.
type Outcome struct {
	Previous int
	Current  int
	Changed  bool
	// Delivery is set only when a notification was attempted.
	Delivery *notify.Result
	// Saved reports whether Current was written to the store.
	Saved bool
}

// Detector compares the live count with the stored one.
type Detector struct {
	pageURL   string
	selector  string
	mentionID string
	wait      config.TimeoutsConfig
	store     *dedup.Store
	sender    notify.Sender
}

// New returns a detector for cfg backed by store and sender.
func New(cfg *config.Config, store *dedup.Store, sender notify.Sender) *Detector {
	return &Detector{
		pageURL:   cfg.PageURL,
		selector:  cfg.Portal.TargetSelector,
		mentionID: cfg.MentionID,
		wait:      cfg.Timeouts,
		store:     store,
		sender:    sender,
	}
}

// Check must run on an authenticated surface. A failed delivery is not an
// error: it is reported in the outcome and the store keeps the old value so
// the change is reported again next run.
func (d *Detector) Check(ctx context.Context, s browser.Surface) (Outcome, error) {
	var out Outcome

	if err := s.Navigate(ctx, d.pageURL); err != nil {
		return out, errors.Internal("failed to open watched page", err).
			WithContext("state", stateName).
			WithContext("url", d.pageURL)
	}
	if err := browser.WaitPresent(ctx, s, d.wait.Wait, d.selector); err != nil {
		if stdErrors.Is(err, browser.ErrTimeout) {
			return out, errors.Timeout(stateName, "target "+d.selector, err)
		}
		return out, errors.Internal("failed waiting for targets", err).WithContext("state", stateName)
	}

	current, err := s.Count(ctx, d.selector)
	if err != nil {
		return out, errors.Internal("failed to count targets", err).
			WithContext("state", stateName).
			WithContext("selector", d.selector)
	}
	previous, err := d.store.Load()
	if err != nil {
		return out, errors.Wrap(err, errors.CategoryFileSystem, "failed to load previous count").
			WithContext("path", d.store.Path())
	}
	out.Previous, out.Current = previous, current
	logging.Info("[DETECT] %d target(s) on page, %d previously notified", current, previous)

	if current == previous {
		return out, nil
	}
	out.Changed = true

	res := d.sender.Send(ctx, notify.ChangeMessage(d.mentionID, previous, current, d.pageURL))
	out.Delivery = &res
	if !res.Delivered {
		logging.Warn("[DETECT] change %d -> %d not delivered, keeping stored count", previous, current)
		return out, nil
	}

	if err := d.store.Save(current); err != nil {
		return out, errors.Wrap(err, errors.CategoryFileSystem, "failed to store notified count").
			WithContext("path", d.store.Path())
	}
	out.Saved = true
	return out, nil
}
