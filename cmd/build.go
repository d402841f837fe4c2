package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reproenv/repro-env/internal/workflow"
)

var (
	buildFile string
	buildKeep bool
	buildEnv  []string
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] -- [cmd...]",
	Short: "Provision a container from repro-env.lock and run a command in it",
	Args:  cobra.ArbitraryArgs,
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildFile, "file", "f", defaultLockfileFile, "lockfile to read")
	buildCmd.Flags().BoolVarP(&buildKeep, "keep", "k", false, "keep the container running after cmd exits")
	buildCmd.Flags().StringArrayVarP(&buildEnv, "env", "e", nil, "environment variable to pass into the container (NAME or NAME=VALUE), repeatable")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	if err := validateEnv(buildEnv); err != nil {
		return err
	}

	exitCode, err := workflow.Build(context.Background(), workflow.BuildOptions{
		ManifestPath: defaultManifestFile,
		LockfilePath: buildFile,
		Keep:         buildKeep,
		Env:          buildEnv,
		Cmd:          args,
	})
	if err != nil {
		return err
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// validateEnv rejects duplicate or malformed --env entries before a
// container is ever created. Each entry is either a bare NAME (forwarded
// from the invoking shell's own environment) or a NAME=VALUE pair.
func validateEnv(entries []string) error {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		name := e
		if idx := strings.IndexByte(e, '='); idx >= 0 {
			name = e[:idx]
		}
		if name == "" {
			return fmt.Errorf("invalid --env entry %q: empty variable name", e)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate --env variable: %s", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
