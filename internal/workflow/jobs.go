package workflow

import (
	"os"
	"strconv"
)

const defaultJobs = 4

// jobLimit returns the maximum number of concurrent package downloads/stages,
// honoring REPRO_ENV_JOBS and falling back to defaultJobs for an unset or
// invalid value.
func jobLimit() int64 {
	v := os.Getenv("REPRO_ENV_JOBS")
	if v == "" {
		return defaultJobs
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultJobs
	}
	return int64(n)
}
