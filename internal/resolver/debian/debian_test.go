package debian

import (
	"testing"
	"time"
)

func TestParseStanzas(t *testing.T) {
	data := []byte(`Package: libfoo
Version: 1.0-1
Filename: pool/main/libfoo_1.0-1_amd64.deb
SHA256: deadbeef
Depends: libc6 (>= 2.34), libssl3 | libssl1.1
Provides: libfoo-abi

Package: libbar
Version: 2.0-1
Filename: pool/main/libbar_2.0-1_amd64.deb
SHA256: cafebabe
Pre-Depends: libfoo
`)

	stanzas, err := parseStanzas(data)
	if err != nil {
		t.Fatalf("parseStanzas: %v", err)
	}
	if len(stanzas) != 2 {
		t.Fatalf("len(stanzas) = %d, want 2", len(stanzas))
	}
	if stanzas[0]["Package"] != "libfoo" {
		t.Errorf("stanzas[0][Package] = %q", stanzas[0]["Package"])
	}
	if stanzas[1]["Pre-Depends"] != "libfoo" {
		t.Errorf("stanzas[1][Pre-Depends] = %q", stanzas[1]["Pre-Depends"])
	}
}

func TestParseStanzasFoldedLines(t *testing.T) {
	data := []byte("Package: libfoo\nDescription: a library\n that does things\n more things\n\n")
	stanzas, err := parseStanzas(data)
	if err != nil {
		t.Fatalf("parseStanzas: %v", err)
	}
	want := "a library\nthat does things\nmore things"
	if stanzas[0]["Description"] != want {
		t.Errorf("Description = %q, want %q", stanzas[0]["Description"], want)
	}
}

func TestParseDependsField(t *testing.T) {
	groups := parseDependsField("libc6 (>= 2.34), libssl3 | libssl1.1, libz1")
	if len(groups) != 3 {
		t.Fatalf("len(groups) = %d, want 3", len(groups))
	}
	if groups[0][0] != "libc6" {
		t.Errorf("groups[0] = %v", groups[0])
	}
	if len(groups[1]) != 2 || groups[1][0] != "libssl3" || groups[1][1] != "libssl1.1" {
		t.Errorf("groups[1] = %v, want [libssl3 libssl1.1]", groups[1])
	}
}

func TestParseDependsFieldEmpty(t *testing.T) {
	if groups := parseDependsField(""); groups != nil {
		t.Errorf("parseDependsField(\"\") = %v, want nil", groups)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList("libfoo-abi, libfoo-abi-2 (= 1.0)")
	want := []string{"libfoo-abi", "libfoo-abi-2"}
	if len(got) != len(want) {
		t.Fatalf("splitList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSnapshotTimestampFormat(t *testing.T) {
	ts := snapshotTimestamp(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if ts != "20260102T030405Z" {
		t.Errorf("snapshotTimestamp() = %q, want 20260102T030405Z", ts)
	}
}

func TestSourcesFromAptSources(t *testing.T) {
	data := []byte("deb http://deb.debian.org/debian bookworm main\n")
	suite, components := sourcesFromAptSources(data)
	if suite != "bookworm" {
		t.Errorf("sourcesFromAptSources() suite = %q, want bookworm", suite)
	}
	if len(components) != 1 || components[0] != "main" {
		t.Errorf("sourcesFromAptSources() components = %v, want [main]", components)
	}
}

func TestSourcesFromAptSourcesMultipleComponents(t *testing.T) {
	data := []byte("deb http://deb.debian.org/debian bookworm main contrib non-free\n")
	suite, components := sourcesFromAptSources(data)
	if suite != "bookworm" {
		t.Errorf("sourcesFromAptSources() suite = %q, want bookworm", suite)
	}
	want := []string{"main", "contrib", "non-free"}
	if len(components) != len(want) {
		t.Fatalf("sourcesFromAptSources() components = %v, want %v", components, want)
	}
	for i := range want {
		if components[i] != want[i] {
			t.Errorf("sourcesFromAptSources() components[%d] = %q, want %q", i, components[i], want[i])
		}
	}
}

func TestSourcesFromAptSourcesFallsBack(t *testing.T) {
	suite, components := sourcesFromAptSources([]byte(""))
	if suite != defaultSuite {
		t.Errorf("sourcesFromAptSources(empty) suite = %q, want %q", suite, defaultSuite)
	}
	if len(components) != 1 || components[0] != "main" {
		t.Errorf("sourcesFromAptSources(empty) components = %v, want [main]", components)
	}
}

func TestParseReleaseSHA256(t *testing.T) {
	data := []byte(`Origin: Debian
Suite: bookworm
SHA256:
 ` + "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef 123456 main/binary-amd64/Packages.xz" + `
 ` + "cafebabecafebabecafebabecafebabecafebabecafebabecafebabecafebabe 654321 main/binary-amd64/Packages.gz" + `
`)
	stanzas, err := parseStanzas(data)
	if err != nil {
		t.Fatalf("parseStanzas: %v", err)
	}

	idx, err := parseReleaseSHA256(stanzas)
	if err != nil {
		t.Fatalf("parseReleaseSHA256: %v", err)
	}

	want := "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if got := idx["main/binary-amd64/Packages.xz"]; got != want {
		t.Errorf("idx[main/binary-amd64/Packages.xz] = %q, want %q", got, want)
	}
}

func TestParseReleaseSHA256MissingField(t *testing.T) {
	stanzas := []stanza{{"Origin": "Debian"}}
	if _, err := parseReleaseSHA256(stanzas); err == nil {
		t.Error("parseReleaseSHA256 should fail when SHA256 field is absent")
	}
}

func TestVerifySha256Mismatch(t *testing.T) {
	err := verifySha256([]byte("hello"), "0000000000000000000000000000000000000000000000000000000000000000")
	if err == nil {
		t.Error("verifySha256 should fail on a mismatched digest")
	}
}
