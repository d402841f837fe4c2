package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/reproenv/repro-env/internal/workflow"
)

var (
	fetchFile   string
	fetchNoPull bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download every package named in repro-env.lock into the local cache",
	Args:  cobra.NoArgs,
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchFile, "file", "f", defaultLockfileFile, "lockfile to read")
	fetchCmd.Flags().BoolVar(&fetchNoPull, "no-pull", false, "don't pull the lockfile's base image, even if it isn't cached locally")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	return workflow.Fetch(context.Background(), workflow.FetchOptions{
		LockfilePath: fetchFile,
		NoPull:       fetchNoPull,
	})
}
