package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lance13c/portalwatch/internal/config"
	"github.com/lance13c/portalwatch/internal/errors"
	"github.com/lance13c/portalwatch/internal/logging"
)

type rootOptions struct {
	headless    bool
	remote      string
	testWebhook bool
	workdir     string
	configFile  string
	verbose     bool
	strictExit  bool

	// exitCode is what the process returns once the command finished.
	exitCode int
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portalwatch",
		Short: "Watch an SSO-protected portal page and alert on changes",
		Long: `portalwatch runs one watch cycle: it reuses or re-establishes an SSO
session in a persistent Chrome profile, counts the tracked elements on the
watched page and posts a webhook alert when the count changed since the
last delivered alert.

It is meant to be started periodically by a scheduler such as cron. A run
that finds another run in progress exits quietly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.workdir != "" {
				if err := os.Chdir(opts.workdir); err != nil {
					return fmt.Errorf("failed to change to workdir: %w", err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.workdir, "workdir", "", "change to this directory before anything else")
	flags.StringVar(&opts.configFile, "config", "", "YAML portal profile (default $PORTALWATCH_CONFIG)")
	flags.BoolVarP(&opts.verbose, "verbose", "V", false, "debug logging mirrored to stderr")

	rootCmd.Flags().BoolVar(&opts.headless, "headless", false, "run Chrome without a window")
	rootCmd.Flags().StringVar(&opts.remote, "remote", "", "DevTools endpoint of a running Chrome (ws://… or http://host:port)")
	rootCmd.Flags().BoolVar(&opts.testWebhook, "test-webhook", false, "send a test message to the webhook and exit")
	rootCmd.Flags().BoolVar(&opts.strictExit, "strict-exit", false, "exit non-zero with a per-category code when the run fails")

	rootCmd.AddCommand(newDoctorCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the CLI with args and returns the process exit status.
func Execute(args []string) int {
	opts := &rootOptions{}
	rootCmd := newRootCmd(opts)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if opts.exitCode == 0 {
			return 1
		}
	}
	return opts.exitCode
}

// loadConfig loads the configuration and starts file logging under its data
// dir. Configuration errors always produce a non-zero exit.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	lo := config.LoadOptions{ConfigFile: opts.configFile}
	if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
		lo.Headless = &opts.headless
	}
	lo.RemoteURL = opts.remote

	cfg, err := config.Load(lo)
	if err != nil {
		// The caller reports err; file logging is not up yet.
		opts.exitCode = 1
		if opts.strictExit {
			opts.exitCode = errors.ExitCodeFor(err)
		}
		return nil, err
	}

	if err := logging.Initialize(cfg.Paths.DataDir, logging.Options{Verbose: opts.verbose}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize logging: %v\n", err)
	} else {
		logging.RedirectStandardLog()
	}
	return cfg, nil
}
