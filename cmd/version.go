package cmd

import (
	"github.com/spf13/cobra"
)

var appVersion = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for portalwatch",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("portalwatch version %s\n", appVersion)
		},
	}
}

func SetVersion(version string) {
	appVersion = version
}
