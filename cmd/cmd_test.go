package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func executeCommand(args ...string) (string, string, error) {
	updateNoPull = false
	updateKeep = false
	fetchFile = defaultLockfileFile
	fetchNoPull = false
	buildFile = defaultLockfileFile
	buildKeep = false
	buildEnv = nil
	verboseCount = 0
	contextDir = ""

	rootCmd.SetArgs(args)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)

	err := rootCmd.Execute()

	rootCmd.SetArgs(nil)
	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)

	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	if !strings.Contains(stdout, "repro-env") {
		t.Error("help output should contain 'repro-env'")
	}
	if !strings.Contains(stdout, "lockfile") {
		t.Error("help output should mention the lockfile")
	}
}

func TestGlobalFlags(t *testing.T) {
	stdout, _, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	if !strings.Contains(stdout, "--verbose") {
		t.Error("should have --verbose flag")
	}
	if !strings.Contains(stdout, "--context") {
		t.Error("should have --context flag")
	}
}

func TestUpdateCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("update", "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	if !strings.Contains(stdout, "--no-pull") {
		t.Error("update help should mention --no-pull")
	}
	if !strings.Contains(stdout, "--keep") {
		t.Error("update help should mention --keep")
	}
}

func TestBuildCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("build", "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	if !strings.Contains(stdout, "--env") {
		t.Error("build help should mention --env")
	}
	if !strings.Contains(stdout, "--file") {
		t.Error("build help should mention --file")
	}
}

func TestFetchCommand_Help(t *testing.T) {
	stdout, _, err := executeCommand("fetch", "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	if !strings.Contains(stdout, "cache") {
		t.Error("fetch help should mention the cache")
	}
}

func TestCompletionsCommand_RejectsUnknownShell(t *testing.T) {
	_, _, err := executeCommand("completions", "tcsh")
	if err == nil {
		t.Error("completions should reject an unsupported shell name")
	}
}

func TestValidateEnv(t *testing.T) {
	cases := []struct {
		name    string
		entries []string
		wantErr bool
	}{
		{"empty", nil, false},
		{"bare name", []string{"PATH"}, false},
		{"name=value", []string{"FOO=bar"}, false},
		{"mixed", []string{"FOO=bar", "PATH"}, false},
		{"duplicate", []string{"FOO=bar", "FOO=baz"}, true},
		{"empty name", []string{"=bar"}, true},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := validateEnv(tt.entries)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateEnv(%v) error = %v, wantErr %v", tt.entries, err, tt.wantErr)
			}
		})
	}
}
