// Package cache implements the content-addressed package store: files are
// named by the lowercase-hex SHA-256 of their content, sharded into
// subdirectories named by the first two hex characters, with an advisory
// exclusive lock serializing writers.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/reproenv/repro-env/internal/paths"
	"github.com/reproenv/repro-env/internal/reproerr"
)

// Cache is a filesystem-backed, SHA-256-addressed store of package
// artifacts.
type Cache struct {
	dir *paths.PkgsCacheDir
}

// New opens the package cache rooted at the resolved pkgs cache directory,
// creating it if necessary.
func New() (*Cache, error) {
	dir, err := paths.NewPkgsCacheDir()
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindGeneral, "failed to resolve cache directory", err)
	}
	if err := os.MkdirAll(dir.Root(), 0o755); err != nil {
		return nil, reproerr.Wrap(reproerr.KindGeneral, "failed to create cache directory", err)
	}
	return &Cache{dir: dir}, nil
}

// Path returns the cache path an artifact with the given SHA-256 digest
// would occupy, without checking whether it exists.
func (c *Cache) Path(sha256Hex string) (string, error) {
	return c.dir.Sha256Path(sha256Hex)
}

// Has reports whether a cache entry already exists for the given digest.
func (c *Cache) Has(sha256Hex string) (bool, error) {
	path, err := c.Path(sha256Hex)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// sentinelPath returns the lock-file path guarding concurrent writers to
// this cache root.
func (c *Cache) sentinelPath() string {
	return filepath.Join(c.dir.Root(), ".lock")
}

// Put drains r into the cache entry for expectedSha256, hashing as it
// writes. On success it returns the final cache path. If the observed hash
// disagrees with expectedSha256, the partial file is discarded and a
// HashMismatch error is returned. An advisory exclusive lock on the cache's
// sentinel file serializes concurrent Put calls; readers never lock.
func (c *Cache) Put(r io.Reader, expectedSha256 string) (string, error) {
	path, err := c.Path(expectedSha256)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", reproerr.Wrap(reproerr.KindGeneral, "failed to create cache shard directory", err)
	}

	unlock, err := c.lock()
	if err != nil {
		return "", err
	}
	defer unlock()

	// Another writer may have completed the entry while we waited for the
	// lock.
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", reproerr.Wrap(reproerr.KindGeneral, "failed to create temp cache file", err)
	}

	hasher := sha256.New()
	_, copyErr := io.Copy(f, io.TeeReader(r, hasher))
	closeErr := f.Close()

	if copyErr != nil {
		os.Remove(tmpPath)
		return "", reproerr.Wrap(reproerr.KindNetwork, "failed to write cache entry", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", reproerr.Wrap(reproerr.KindGeneral, "failed to close temp cache file", closeErr)
	}

	observed := hex.EncodeToString(hasher.Sum(nil))
	if observed != expectedSha256 {
		os.Remove(tmpPath)
		return "", reproerr.HashMismatch(expectedSha256, observed)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", reproerr.Wrap(reproerr.KindGeneral, "failed to commit cache entry", err)
	}

	return path, nil
}

// GetOrFetch returns the cache path for expectedSha256, calling fetch to
// populate it if it isn't already present. fetch is expected to open the
// given URL and return a reader over its body.
func (c *Cache) GetOrFetch(url, expectedSha256 string, fetch func(url string) (io.ReadCloser, error)) (string, error) {
	if ok, err := c.Has(expectedSha256); err != nil {
		return "", err
	} else if ok {
		return c.Path(expectedSha256)
	}

	body, err := fetch(url)
	if err != nil {
		return "", reproerr.Wrap(reproerr.KindNetwork, fmt.Sprintf("failed to fetch %s", url), err)
	}
	defer body.Close()

	return c.Put(body, expectedSha256)
}

// PutComputingHash drains r into the cache, naming the resulting entry by
// the SHA-256 it actually observes rather than one supplied up front. Used
// by plugins (Alpine) whose index doesn't carry a usable SHA-256 pin ahead
// of download.
func (c *Cache) PutComputingHash(r io.Reader) (path, sha256Hex string, err error) {
	hasher := sha256.New()
	data, err := io.ReadAll(io.TeeReader(r, hasher))
	if err != nil {
		return "", "", reproerr.Wrap(reproerr.KindNetwork, "failed to read package stream", err)
	}

	sha256Hex = hex.EncodeToString(hasher.Sum(nil))
	path, err = c.Put(bytes.NewReader(data), sha256Hex)
	if err != nil {
		return "", "", err
	}
	return path, sha256Hex, nil
}

// lock acquires an advisory exclusive flock on the cache sentinel file and
// returns a function to release it.
func (c *Cache) lock() (func(), error) {
	path := c.sentinelPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, reproerr.Wrap(reproerr.KindGeneral, "failed to open cache lock sentinel", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, reproerr.Wrap(reproerr.KindGeneral, "failed to acquire cache lock", err)
	}

	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
