package main

import (
	"os"

	"github.com/reproenv/repro-env/cmd"
	"github.com/reproenv/repro-env/internal/logging"
	"github.com/reproenv/repro-env/internal/reproerr"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logging.UserError("%s", err)
		os.Exit(reproerr.GetExitCode(err))
	}
}
