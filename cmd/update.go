package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/reproenv/repro-env/internal/workflow"
)

var (
	updateNoPull bool
	updateKeep   bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Resolve repro-env.toml into a fresh repro-env.lock",
	Args:  cobra.NoArgs,
	RunE:  runUpdate,
}

func init() {
	updateCmd.Flags().BoolVar(&updateNoPull, "no-pull", false, "don't pull the base image before inspecting it")
	updateCmd.Flags().BoolVarP(&updateKeep, "keep", "k", false, "keep the resolver container running until interrupted")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	return workflow.Update(context.Background(), workflow.UpdateOptions{
		ManifestPath: defaultManifestFile,
		LockfilePath: defaultLockfileFile,
		NoPull:       updateNoPull,
		Keep:         updateKeep,
	})
}
