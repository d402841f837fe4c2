package workflow

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFilenameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://archive.archlinux.org/packages/r/rust/rust-1.75.0-1-x86_64.pkg.tar.zst": "rust-1.75.0-1-x86_64.pkg.tar.zst",
		"https://snapshot.debian.org/archive/debian/20240101T000000Z/pool/main/c/curl/curl_8.0.0_amd64.deb": "curl_8.0.0_amd64.deb",
		"not a url but has/a/path": "path",
	}
	for in, want := range cases {
		if got := filenameFromURL(in); got != want {
			t.Errorf("filenameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReflinkOrCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	want := []byte("package contents")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := reflinkOrCopy(dst, src); err != nil {
		t.Fatalf("reflinkOrCopy: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("copied content = %q, want %q", got, want)
	}
}
