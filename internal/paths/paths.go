// Package paths resolves the on-disk locations repro-env uses for its state
// and package cache, honoring the REPRO_ENV_HOME and REPRO_ENV_CACHE
// environment overrides.
package paths

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

const shardSize = 2

// HomeDir returns the repro-env state directory: REPRO_ENV_HOME if set,
// otherwise "<user cache dir>/repro-env".
func HomeDir() (string, error) {
	if path := os.Getenv("REPRO_ENV_HOME"); path != "" {
		return path, nil
	}

	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to detect cache directory: %w", err)
	}
	return filepath.Join(cache, "repro-env"), nil
}

// CacheDir returns the directory used for downloaded artifacts and resolver
// metadata: REPRO_ENV_CACHE if set, otherwise HomeDir.
func CacheDir() (string, error) {
	if path := os.Getenv("REPRO_ENV_CACHE"); path != "" {
		return path, nil
	}
	return HomeDir()
}

// PkgsCacheDir is the content-addressed store of downloaded package
// artifacts, sharded by the first two hex characters of each SHA-256 digest.
type PkgsCacheDir struct {
	path string
}

// NewPkgsCacheDir returns the "pkgs" subdirectory of CacheDir.
func NewPkgsCacheDir() (*PkgsCacheDir, error) {
	dir, err := CacheDir()
	if err != nil {
		return nil, err
	}
	return &PkgsCacheDir{path: filepath.Join(dir, "pkgs")}, nil
}

// AlpineCacheDir is the cache directory for Alpine APKINDEX snapshots.
func AlpineCacheDir() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "alpine"), nil
}

// Root returns the base directory backing this cache.
func (d *PkgsCacheDir) Root() string {
	return d.path
}

func shard(hash, algo string, length int) (string, string, error) {
	if len(hash) != length {
		return "", "", fmt.Errorf("unexpected %s checksum length: %d", algo, len(hash))
	}
	for _, r := range hash {
		if !isAlphanumeric(r) {
			return "", "", fmt.Errorf("unexpected characters in %s: %q", algo, hash)
		}
	}
	return hash[:shardSize], hash[shardSize:], nil
}

func isAlphanumeric(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Sha256Path returns the cache path for an artifact keyed by its SHA-256
// digest, sharded as "<first-two-hex>/<remaining-62-hex>".
func (d *PkgsCacheDir) Sha256Path(sha256 string) (string, error) {
	shardDir, suffix, err := shard(sha256, "sha256", 64)
	if err != nil {
		return "", err
	}
	return securejoin.SecureJoin(d.path, filepath.Join(shardDir, suffix))
}

// Sha1Path returns the legacy sha1-indexed symlink path used to dedupe
// Debian packages pinned by SHA-1 against their SHA-256 cache entry.
func (d *PkgsCacheDir) Sha1Path(sha1 string) (string, error) {
	shardDir, suffix, err := shard(sha1, "sha1", 40)
	if err != nil {
		return "", err
	}
	return securejoin.SecureJoin(d.path, filepath.Join(shardDir, suffix))
}

// Sha1ToSha256 returns the sha1-path/relative-sha256-target pair to create a
// symlink recording that a sha1 digest resolves to a given sha256 entry.
func (d *PkgsCacheDir) Sha1ToSha256(sha1, sha256 string) (sha1Path, sha256RelTarget string, err error) {
	sha1Path, err = d.Sha1Path(sha1)
	if err != nil {
		return "", "", err
	}

	shardDir, suffix, err := shard(sha256, "sha256", 64)
	if err != nil {
		return "", "", err
	}
	sha256RelTarget = filepath.Join("..", "..", "pkgs", shardDir, suffix)
	return sha1Path, sha256RelTarget, nil
}

// CurrentUser resolves the invoking user's uid/gid, used when the container
// needs to run as a matching non-root user.
func CurrentUser() (uid, gid string, err error) {
	u, err := user.Current()
	if err != nil {
		return "", "", fmt.Errorf("failed to determine current user: %w", err)
	}
	return u.Uid, u.Gid, nil
}
