package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lance13c/portalwatch/internal/browser"
	"github.com/lance13c/portalwatch/internal/config"
	"github.com/lance13c/portalwatch/internal/database"
	"github.com/lance13c/portalwatch/internal/dedup"
	"github.com/lance13c/portalwatch/internal/lock"
	"github.com/lance13c/portalwatch/internal/logging"
)

// staleAfter is the marker age past which doctor suggests a leftover lock.
const staleAfter = time.Hour

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and environment",
		Long: `Doctor runs health checks without starting a watch cycle.

This command will:
• Load and validate the configuration
• Find Chrome, or reach the remote DevTools endpoint
• Report a lock marker left behind by a killed run
• Show the stored alert count and the last journal entries

Example:
  portalwatch doctor --workdir /srv/portalwatch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, opts)
		},
	}
}

func runDoctor(cmd *cobra.Command, opts *rootOptions) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "portalwatch health check")
	fmt.Fprintln(out, "========================")

	fmt.Fprint(out, "Loading configuration... ")
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		fmt.Fprintf(out, "   %v\n", err)
		return nil
	}
	fmt.Fprintln(out, "PASSED")
	fmt.Fprintf(out, "   page %s, portal domain %s, identity provider %s\n",
		cfg.PageURL, cfg.Portal.Domain, cfg.Portal.IdPDomain)
	if path := logging.GetLogger().GetLogPath(); path != "" {
		fmt.Fprintf(out, "   log file %s\n", path)
	}

	passed := checkBrowser(cmd.Context(), out, cfg)
	if !checkLock(out, cfg) {
		passed = false
	}
	checkDedup(out, cfg)
	checkJournal(out, cfg)

	fmt.Fprintln(out)
	if passed {
		fmt.Fprintln(out, "All checks passed.")
		return nil
	}
	fmt.Fprintln(out, "Some checks failed.")
	opts.exitCode = 1
	return nil
}

func checkBrowser(ctx context.Context, out io.Writer, cfg *config.Config) bool {
	if cfg.Browser.RemoteURL != "" {
		fmt.Fprintf(out, "Reaching remote Chrome at %s... ", cfg.Browser.RemoteURL)
		wsURL, err := browser.ResolveRemote(ctx, cfg.Browser.RemoteURL)
		if err != nil {
			fmt.Fprintln(out, "FAILED")
			fmt.Fprintf(out, "   %v\n", err)
			return false
		}
		fmt.Fprintln(out, "PASSED")
		fmt.Fprintf(out, "   %s\n", wsURL)
		return true
	}

	fmt.Fprint(out, "Finding Chrome... ")
	path, err := browser.FindChrome()
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		fmt.Fprintf(out, "   %v\n", err)
		return false
	}
	fmt.Fprintln(out, "PASSED")
	fmt.Fprintf(out, "   %s (profile %s, headless %t)\n", path, cfg.Paths.ProfileDir(), cfg.Browser.Headless)
	return true
}

func checkLock(out io.Writer, cfg *config.Config) bool {
	fmt.Fprint(out, "Checking lock marker... ")
	status, err := lock.Status(cfg.Paths.LockFile)
	switch {
	case err != nil:
		fmt.Fprintln(out, "FAILED")
		fmt.Fprintf(out, "   %v\n", err)
		return false
	case !status.Present:
		fmt.Fprintln(out, "PASSED")
		return true
	case status.Age > staleAfter:
		fmt.Fprintln(out, "WARNING")
		fmt.Fprintf(out, "   %s is %v old (pid %s); if no run is active, delete it\n",
			cfg.Paths.LockFile, status.Age.Round(time.Second), status.Content)
		return false
	default:
		fmt.Fprintln(out, "PASSED")
		fmt.Fprintf(out, "   a run is in progress (pid %s)\n", status.Content)
		return true
	}
}

func checkDedup(out io.Writer, cfg *config.Config) {
	n, err := dedup.NewStore(cfg.Paths.DedupFile).Load()
	if err != nil {
		fmt.Fprintf(out, "Stored count: unreadable (%v)\n", err)
		return
	}
	fmt.Fprintf(out, "Stored count: %d\n", n)
}

func checkJournal(out io.Writer, cfg *config.Config) {
	j, err := database.Open(cfg.Paths.JournalPath())
	if err != nil {
		fmt.Fprintf(out, "Journal: unavailable (%v)\n", err)
		return
	}
	defer j.Close()

	runs, err := j.LastRuns(5)
	if err != nil {
		fmt.Fprintf(out, "Journal: %v\n", err)
		return
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "Journal: no runs recorded yet")
		return
	}
	fmt.Fprintln(out, "Last runs:")
	for _, r := range runs {
		result := "ok"
		if !r.Success() {
			result = r.ErrorCategory
		}
		fmt.Fprintf(out, "   %s  %-6s %-7s %d -> %d  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.AuthPath, result, r.Previous, r.Current, r.ID)
	}
}
