package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"testing"

	"github.com/reproenv/repro-env/internal/reproerr"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	t.Setenv("REPRO_ENV_HOME", t.TempDir())
	t.Setenv("REPRO_ENV_CACHE", "")

	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestPutAndHas(t *testing.T) {
	c := newTestCache(t)
	data := []byte("package contents")
	digest := sha256Hex(data)

	if ok, err := c.Has(digest); err != nil || ok {
		t.Fatalf("Has before Put = (%v, %v), want (false, nil)", ok, err)
	}

	path, err := c.Put(bytes.NewReader(data), digest)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("cached content = %q, want %q", got, data)
	}

	if ok, err := c.Has(digest); err != nil || !ok {
		t.Fatalf("Has after Put = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestPutHashMismatch(t *testing.T) {
	c := newTestCache(t)
	data := []byte("package contents")
	wrongDigest := sha256Hex([]byte("different contents"))

	_, err := c.Put(bytes.NewReader(data), wrongDigest)
	if err == nil {
		t.Fatal("Put with wrong digest succeeded, want error")
	}
	if !reproerr.Is(err, reproerr.KindHashMismatch) {
		t.Errorf("error kind = %v, want HashMismatch", err)
	}

	if ok, _ := c.Has(wrongDigest); ok {
		t.Error("cache entry should not exist after hash mismatch")
	}
}

func TestPutIdempotent(t *testing.T) {
	c := newTestCache(t)
	data := []byte("idempotent contents")
	digest := sha256Hex(data)

	path1, err := c.Put(bytes.NewReader(data), digest)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	path2, err := c.Put(bytes.NewReader(data), digest)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if path1 != path2 {
		t.Errorf("paths differ: %q vs %q", path1, path2)
	}
}

func TestGetOrFetch(t *testing.T) {
	c := newTestCache(t)
	data := []byte("fetched contents")
	digest := sha256Hex(data)

	calls := 0
	fetch := func(url string) (io.ReadCloser, error) {
		calls++
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	path1, err := c.GetOrFetch("https://example.test/pkg", digest, fetch)
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	path2, err := c.GetOrFetch("https://example.test/pkg", digest, fetch)
	if err != nil {
		t.Fatalf("second GetOrFetch: %v", err)
	}

	if path1 != path2 {
		t.Errorf("paths differ: %q vs %q", path1, path2)
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1 (second call should hit cache)", calls)
	}
}
