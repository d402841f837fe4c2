package container

import "testing"

func TestMountArg(t *testing.T) {
	m := Mount{Source: "/pkgs", Target: "/pkgs", ReadOnly: true}
	if got, want := m.arg(), "-v=/pkgs:/pkgs:ro"; got != want {
		t.Errorf("arg() = %q, want %q", got, want)
	}
}

func TestMountArgReadWrite(t *testing.T) {
	m := Mount{Source: "/workspace", Target: "/workspace"}
	if got, want := m.arg(), "-v=/workspace:/workspace"; got != want {
		t.Errorf("arg() = %q, want %q", got, want)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine([]byte("abc123\n")); got != "abc123" {
		t.Errorf("firstLine() = %q, want abc123", got)
	}
	if got := firstLine([]byte("abc123")); got != "abc123" {
		t.Errorf("firstLine(no newline) = %q, want abc123", got)
	}
}

func TestExecOptionsArgsPrefix(t *testing.T) {
	opts := ExecOptions{Cwd: "/build", User: "root", Env: []string{"FOO=bar"}}
	args := opts.argsPrefix()
	want := []string{"-w", "/build", "-u", "root", "-e", "FOO=bar"}
	if len(args) != len(want) {
		t.Fatalf("argsPrefix() = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("argsPrefix()[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}
