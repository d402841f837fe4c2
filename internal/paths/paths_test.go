package paths

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSha256Path(t *testing.T) {
	d := &PkgsCacheDir{path: "/cache"}

	for _, bad := range []string{
		"",
		"ffff",
		strings.Repeat("/", 64),
	} {
		if _, err := d.Sha256Path(bad); err == nil {
			t.Errorf("Sha256Path(%q) = nil error, want error", bad)
		}
	}

	hash := strings.Repeat("f", 64)
	path, err := d.Sha256Path(hash)
	if err != nil {
		t.Fatalf("Sha256Path: %v", err)
	}
	want := filepath.Join("/cache", "ff", strings.Repeat("f", 62))
	if path != want {
		t.Errorf("Sha256Path() = %q, want %q", path, want)
	}
}

func TestSha1ToSha256(t *testing.T) {
	d := &PkgsCacheDir{path: "/cache"}

	sha1Path, sha256Target, err := d.Sha1ToSha256(
		"83d8ab27f4fd4725a147245f89d076aa96b52262",
		"ff7951b5950a3a0319e86988041db4438b31a6ee4c7a36c64bd6c0c4607e40c9",
	)
	if err != nil {
		t.Fatalf("Sha1ToSha256: %v", err)
	}

	wantSha1 := filepath.Join("/cache", "83", "d8ab27f4fd4725a147245f89d076aa96b52262")
	if sha1Path != wantSha1 {
		t.Errorf("sha1Path = %q, want %q", sha1Path, wantSha1)
	}

	wantSha256 := filepath.Join("..", "..", "pkgs", "ff", "7951b5950a3a0319e86988041db4438b31a6ee4c7a36c64bd6c0c4607e40c9")
	if sha256Target != wantSha256 {
		t.Errorf("sha256Target = %q, want %q", sha256Target, wantSha256)
	}
}

func TestHomeDirEnvOverride(t *testing.T) {
	t.Setenv("REPRO_ENV_HOME", "/custom/home")
	got, err := HomeDir()
	if err != nil {
		t.Fatalf("HomeDir: %v", err)
	}
	if got != "/custom/home" {
		t.Errorf("HomeDir() = %q, want /custom/home", got)
	}
}

func TestCacheDirEnvOverride(t *testing.T) {
	t.Setenv("REPRO_ENV_HOME", "/custom/home")
	t.Setenv("REPRO_ENV_CACHE", "/custom/cache")
	got, err := CacheDir()
	if err != nil {
		t.Fatalf("CacheDir: %v", err)
	}
	if got != "/custom/cache" {
		t.Errorf("CacheDir() = %q, want /custom/cache", got)
	}
}

func TestCacheDirFallsBackToHome(t *testing.T) {
	t.Setenv("REPRO_ENV_HOME", "/custom/home")
	t.Setenv("REPRO_ENV_CACHE", "")
	got, err := CacheDir()
	if err != nil {
		t.Fatalf("CacheDir: %v", err)
	}
	if got != "/custom/home" {
		t.Errorf("CacheDir() = %q, want /custom/home", got)
	}
}
