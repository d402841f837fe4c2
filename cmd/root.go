// Package cmd implements the repro-env command-line interface: update,
// build, fetch, and completions, wired through cobra the same way the
// teacher CLI composes its subcommands.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/reproenv/repro-env/internal/logging"
)

var (
	verboseCount int
	contextDir   string
)

const (
	defaultManifestFile = "repro-env.toml"
	defaultLockfileFile = "repro-env.lock"
)

var rootCmd = &cobra.Command{
	Use:   "repro-env",
	Short: "Reproducible build environments pinned by a lockfile",
	Long: `repro-env resolves a manifest of a base container image and its
distribution packages into a pinned lockfile, then provisions a rootless
container from that lockfile to run a build command in.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(verboseCount > 0, false, os.Stderr)
		if contextDir != "" {
			if err := os.Chdir(contextDir); err != nil {
				return err
			}
		}
		return nil
	},
}

// Execute runs the root command, returning any error for main to translate
// into a process exit code.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verboseCount, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().StringVarP(&contextDir, "context", "C", "", "change to this directory before doing anything else")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
