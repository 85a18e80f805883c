package cmd

import (
	"context"
	stdErrors "errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lance13c/portalwatch/internal/browser"
	"github.com/lance13c/portalwatch/internal/config"
	"github.com/lance13c/portalwatch/internal/credentials"
	"github.com/lance13c/portalwatch/internal/database"
	"github.com/lance13c/portalwatch/internal/dedup"
	"github.com/lance13c/portalwatch/internal/errors"
	"github.com/lance13c/portalwatch/internal/lock"
	"github.com/lance13c/portalwatch/internal/logging"
	"github.com/lance13c/portalwatch/internal/metrics"
	"github.com/lance13c/portalwatch/internal/notify"
	"github.com/lance13c/portalwatch/internal/runner"
)

// journalRetention is how long run rows are kept.
const journalRetention = 30 * 24 * time.Hour

// openSurface starts or attaches to Chrome. Tests replace it.
var openSurface = func(cfg *config.Config) runner.SurfaceFactory {
	return func(ctx context.Context) (browser.Surface, error) {
		s, err := browser.NewChromeSurface(ctx, browser.Options{
			Headless:   cfg.Browser.Headless,
			RemoteURL:  cfg.Browser.RemoteURL,
			ProfileDir: cfg.Paths.ProfileDir(),
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func runWatch(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	defer logging.GetLogger().Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sender := notify.NewWebhook(cfg.WebhookURL,
		notify.WithAttempts(cfg.Notify.Attempts),
		notify.WithDelay(cfg.Notify.Delay),
	)

	if opts.testWebhook {
		res := sender.Send(ctx, notify.TestMessage)
		if !res.Delivered {
			logging.Error("[NOTIFY] test message not delivered: %v", res.LastErr)
			opts.exitCode = strictCode(opts, errors.DeliveryFailed(res.Attempts, res.LastErr))
			return nil
		}
		cmd.Println("Test message delivered.")
		return nil
	}

	l, err := lock.Acquire(cfg.Paths.LockFile)
	if stdErrors.Is(err, lock.ErrHeld) {
		logging.Info("[LOCK] %s exists, another run is in progress; skipping", cfg.Paths.LockFile)
		return nil
	}
	if err != nil {
		werr := errors.Wrap(err, errors.CategoryFileSystem, "failed to acquire lock").
			WithContext("path", cfg.Paths.LockFile)
		logging.Error("[LOCK] %v", werr)
		opts.exitCode = strictCode(opts, werr)
		return nil
	}
	defer l.Release()

	provider, err := credentials.NewProvider(cfg.Credentials, nil)
	if err != nil {
		// Validate already checked the secret.
		return err
	}

	r := runner.New(cfg, openSurface(cfg), provider, dedup.NewStore(cfg.Paths.DedupFile), sender)
	rep := r.Run(ctx)

	recordRun(cfg, rep)
	opts.exitCode = strictCode(opts, rep.Err)
	return nil
}

// strictCode maps err to an exit status when --strict-exit is set. Without
// it a handled run failure still exits 0.
func strictCode(opts *rootOptions, err error) int {
	if !opts.strictExit {
		return 0
	}
	return errors.ExitCodeFor(err)
}

// recordRun writes the journal row and the metrics textfile. Failures are
// logged only.
func recordRun(cfg *config.Config, rep *runner.Report) {
	j, err := database.Open(cfg.Paths.JournalPath())
	if err != nil {
		logging.Warn("[JOURNAL] %v", err)
	} else {
		if err := j.Record(rep.Journal()); err != nil {
			logging.Warn("[JOURNAL] %v", err)
		}
		if n, err := j.Prune(rep.StartedAt.Add(-journalRetention)); err != nil {
			logging.Warn("[JOURNAL] %v", err)
		} else if n > 0 {
			logging.Debug("[JOURNAL] pruned %d run(s) older than %v", n, journalRetention)
		}
		j.Close()
	}

	if cfg.Paths.MetricsFile == "" {
		return
	}
	rec := metrics.NewRecorder(nil)
	rec.Observe(rep.Sample())
	if err := rec.WriteTextfile(cfg.Paths.MetricsFile); err != nil {
		logging.Warn("[METRICS] %v", err)
	}
}
