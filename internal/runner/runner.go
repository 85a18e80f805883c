// Package runner executes one watch cycle: open the browser, authenticate,
// check the page, then persist the session and close the browser on every
// exit path.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/lance13c/portalwatch/internal/auth"
	"github.com/lance13c/portalwatch/internal/browser"
	"github.com/lance13c/portalwatch/internal/config"
	"github.com/lance13c/portalwatch/internal/database"
	"github.com/lance13c/portalwatch/internal/dedup"
	"github.com/lance13c/portalwatch/internal/detector"
	"github.com/lance13c/portalwatch/internal/errors"
	"github.com/lance13c/portalwatch/internal/logging"
	"github.com/lance13c/portalwatch/internal/metrics"
	"github.com/lance13c/portalwatch/internal/notify"
	"github.com/lance13c/portalwatch/internal/session"
)

const snapshotBudget = 10 * time.Second

// SurfaceFactory opens the browser for a run.
type SurfaceFactory func(ctx context.Context) (browser.Surface, error)

// Report is the result of one cycle.
type Report struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time

	Auth    auth.Result
	Outcome detector.Outcome

	// Err is the run error; nil when the cycle completed.
	Err error
	// NotifyErr is set when a change could not be delivered. It does not
	// fail the run.
	NotifyErr error

	Persisted int
	Snapshot  string
}

// Success reports whether the cycle completed.
func (r *Report) Success() bool {
	return r.Err == nil
}

// Duration is the wall time of the cycle.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Journal converts the report to a journal row.
func (r *Report) Journal() database.Run {
	run := database.Run{
		ID:            r.ID,
		StartedAt:     r.StartedAt,
		Duration:      r.Duration(),
		AuthPath:      string(r.Auth.Path),
		FinalState:    r.Auth.Final().String(),
		Previous:      r.Outcome.Previous,
		Current:       r.Outcome.Current,
		Changed:       r.Outcome.Changed,
		ErrorCategory: string(errors.CategoryOf(r.Err)),
		Snapshot:      r.Snapshot,
	}
	if r.Outcome.Delivery != nil {
		run.Delivered = r.Outcome.Delivery.Delivered
		run.Attempts = r.Outcome.Delivery.Attempts
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return run
}

// Sample converts the report to a metrics sample.
func (r *Report) Sample() metrics.Sample {
	s := metrics.Sample{
		FinishedAt:    r.FinishedAt,
		Duration:      r.Duration(),
		Success:       r.Success(),
		FailureReason: string(errors.CategoryOf(r.Err)),
		Targets:       r.Outcome.Current,
		LoggedIn:      r.Auth.Path == auth.PathLogin,
	}
	if r.Outcome.Delivery != nil {
		s.Attempts = r.Outcome.Delivery.Attempts
	}
	return s
}

// Runner holds everything a cycle needs.
type Runner struct {
	open          SurfaceFactory
	authenticator *auth.Authenticator
	detector      *detector.Detector
	persister     *session.Persister
	snapshotDir   string
	now           func() time.Time
}

// New wires a runner for cfg.
func New(cfg *config.Config, open SurfaceFactory, codes auth.CodeSource, store *dedup.Store, sender notify.Sender) *Runner {
	return &Runner{
		open:          open,
		authenticator: auth.New(cfg, codes),
		detector:      detector.New(cfg, store, sender),
		persister:     session.NewPersister(cfg.Portal.Domain),
		snapshotDir:   cfg.Paths.SnapshotDir(),
		now:           time.Now,
	}
}

// Run executes one cycle. It never panics and always returns a report. The
// session is persisted and the browser closed whatever the outcome, in that
// order.
func (r *Runner) Run(ctx context.Context) (rep *Report) {
	rep = &Report{ID: uuid.NewString(), StartedAt: r.now()}
	logging.Info("[RUN] %s started", rep.ID)

	defer func() {
		if p := recover(); p != nil && rep.Err == nil {
			rep.Err = panicError(p)
		}
		rep.FinishedAt = r.now()
		r.logResult(rep)
	}()

	s, err := r.open(ctx)
	if err != nil {
		rep.Err = errors.Internal("failed to start browser", err)
		return rep
	}
	defer func() {
		if err := s.Close(); err != nil {
			logging.Warn("[RUN] failed to close browser: %v", err)
		}
	}()
	defer func() {
		n, err := r.persister.Extend(ctx, s)
		if err != nil {
			logging.Warn("[SESSION] persistence failed: %v", err)
		}
		rep.Persisted = n
	}()

	rep.Err = r.cycle(ctx, s, rep)
	if rep.Err != nil {
		rep.Snapshot = r.snapshot(ctx, s, rep)
	}
	return rep
}

func (r *Runner) cycle(ctx context.Context, s browser.Surface, rep *Report) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicError(p)
		}
	}()

	rep.Auth, err = r.authenticator.Authenticate(ctx, s)
	if err != nil {
		return err
	}

	rep.Outcome, err = r.detector.Check(ctx, s)
	if err != nil {
		return err
	}
	if d := rep.Outcome.Delivery; d != nil && !d.Delivered {
		rep.NotifyErr = errors.DeliveryFailed(d.Attempts, d.LastErr)
	}
	return nil
}

func (r *Runner) snapshot(ctx context.Context, s browser.Surface, rep *Report) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotBudget)
	defer cancel()

	name := fmt.Sprintf("%s-%s", rep.ID, errors.CategoryOf(rep.Err))
	path, err := browser.WriteSnapshot(ctx, s, r.snapshotDir, name)
	if err != nil {
		logging.Warn("[RUN] failed to write snapshot: %v", err)
		return ""
	}
	logging.Info("[RUN] page snapshot written to %s", path)
	return path
}

func (r *Runner) logResult(rep *Report) {
	if rep.NotifyErr != nil {
		logging.Warn("[RUN] %s: %v", rep.ID, rep.NotifyErr)
	}
	if rep.Err != nil {
		logging.Error("[RUN] %s failed after %v: %v", rep.ID, rep.Duration().Round(time.Millisecond), rep.Err)
		return
	}
	logging.Info("[RUN] %s finished in %v (auth=%s previous=%d current=%d changed=%t)",
		rep.ID, rep.Duration().Round(time.Millisecond), rep.Auth.Path,
		rep.Outcome.Previous, rep.Outcome.Current, rep.Outcome.Changed)
}

func panicError(p any) error {
	logging.Error("[RUN] recovered panic: %v\n%s", p, debug.Stack())
	return errors.Internal(fmt.Sprintf("panic: %v", p), nil)
}
