package workflow

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/blakesmith/ar"

	"github.com/reproenv/repro-env/internal/lockfile"
)

func writeTar(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content))}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatalf("tar write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}

func TestParsePkgInfo(t *testing.T) {
	pkgTar := writeTar(t, ".PKGINFO", "pkgname = example\npkgver = 1.0-1\narch = x86_64\n")

	got, err := parsePkgInfo(pkgTar)
	if err != nil {
		t.Fatalf("parsePkgInfo: %v", err)
	}
	if got.name != "example" || got.version != "1.0-1" {
		t.Errorf("got %+v, want {example 1.0-1}", got)
	}
}

func TestParsePkgInfoMissing(t *testing.T) {
	pkgTar := writeTar(t, "data.tar", "irrelevant")
	if _, err := parsePkgInfo(pkgTar); err == nil {
		t.Error("parsePkgInfo should fail when .PKGINFO is absent")
	}
}

func writeDeb(t *testing.T, controlContent string) []byte {
	t.Helper()
	var buf bytes.Buffer
	arW := ar.NewWriter(&buf)
	if err := arW.WriteGlobalHeader(); err != nil {
		t.Fatalf("WriteGlobalHeader: %v", err)
	}

	controlTar := writeTar(t, "./control", controlContent)
	if err := arW.WriteHeader(&ar.Header{Name: "control.tar", Size: int64(len(controlTar)), Mode: 0o644}); err != nil {
		t.Fatalf("ar WriteHeader: %v", err)
	}
	if _, err := arW.Write(controlTar); err != nil {
		t.Fatalf("ar write: %v", err)
	}
	return buf.Bytes()
}

func TestParseControl(t *testing.T) {
	debBytes := writeDeb(t, "Package: libfoo\nVersion: 1.0-1\nArchitecture: amd64\n")

	got, err := parseControl(debBytes)
	if err != nil {
		t.Fatalf("parseControl: %v", err)
	}
	if got.name != "libfoo" || got.version != "1.0-1" {
		t.Errorf("got %+v, want {libfoo 1.0-1}", got)
	}
}

func TestParseControlMissing(t *testing.T) {
	var buf bytes.Buffer
	arW := ar.NewWriter(&buf)
	arW.WriteGlobalHeader()
	if _, err := parseControl(buf.Bytes()); err == nil {
		t.Error("parseControl should fail when control.tar is absent")
	}
}

func TestVerifyEmbeddedMetadataMismatch(t *testing.T) {
	debBytes := writeDeb(t, "Package: libfoo\nVersion: 1.0-1\n")

	pkg := lockfile.Package{Name: "libfoo", Version: "2.0-1", System: "debian"}
	if err := verifyEmbeddedMetadata(pkg, debBytes); err == nil {
		t.Error("verifyEmbeddedMetadata should fail on a version mismatch")
	}
}

func TestVerifyEmbeddedMetadataMatches(t *testing.T) {
	debBytes := writeDeb(t, "Package: libfoo\nVersion: 1.0-1\n")

	pkg := lockfile.Package{Name: "libfoo", Version: "1.0-1", System: "debian"}
	if err := verifyEmbeddedMetadata(pkg, debBytes); err != nil {
		t.Errorf("verifyEmbeddedMetadata: %v", err)
	}
}

func TestVerifyEmbeddedMetadataSkipsAlpine(t *testing.T) {
	pkg := lockfile.Package{Name: "busybox", Version: "1.36.1-r0", System: "alpine"}
	if err := verifyEmbeddedMetadata(pkg, []byte("not a real apk")); err != nil {
		t.Errorf("verifyEmbeddedMetadata should no-op for alpine: %v", err)
	}
}
