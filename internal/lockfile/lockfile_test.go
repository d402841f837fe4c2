package lockfile

import (
	"strings"
	"testing"
)

func sig(s string) *string { return &s }

func exampleLockfile() *Lockfile {
	return &Lockfile{
		Container: Container{Image: "docker.io/library/archlinux@sha256:" + strings.Repeat("a", 64)},
		Packages: []Package{
			{
				Name:      "binutils",
				Version:   "2.40-6",
				System:    "archlinux",
				URL:       "https://archive.archlinux.org/packages/b/binutils/binutils-2.40-6-x86_64.pkg.tar.zst",
				Sha256:    strings.Repeat("b", 64),
				Signature: sig("aGVsbG8="),
			},
			{
				Name:     "rust-musl",
				Version:  "1.70-1",
				System:   "archlinux",
				URL:      "https://archive.archlinux.org/packages/r/rust-musl/rust-musl-1.70-1-x86_64.pkg.tar.zst",
				Provides: []string{"rust"},
				Sha256:   strings.Repeat("c", 64),
			},
		},
	}
}

func TestSerializeDeterministic(t *testing.T) {
	l := exampleLockfile()

	out1, err := l.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	out2, err := l.Serialize()
	if err != nil {
		t.Fatalf("Serialize (again): %v", err)
	}
	if string(out1) != string(out2) {
		t.Errorf("serialization is not deterministic:\n%s\nvs\n%s", out1, out2)
	}
	if out1[len(out1)-1] != '\n' {
		t.Error("serialized lockfile must end with a trailing newline")
	}
}

func TestRoundtrip(t *testing.T) {
	l := exampleLockfile()

	data, err := l.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got.Container.Image != l.Container.Image {
		t.Errorf("Container.Image = %q, want %q", got.Container.Image, l.Container.Image)
	}
	if len(got.Packages) != len(l.Packages) {
		t.Fatalf("got %d packages, want %d", len(got.Packages), len(l.Packages))
	}
	for i := range l.Packages {
		if got.Packages[i].Name != l.Packages[i].Name {
			t.Errorf("package[%d].Name = %q, want %q", i, got.Packages[i].Name, l.Packages[i].Name)
		}
	}

	data2, err := got.Serialize()
	if err != nil {
		t.Fatalf("Serialize (roundtrip): %v", err)
	}
	if string(data) != string(data2) {
		t.Errorf("roundtrip is not byte-stable:\n%s\nvs\n%s", data, data2)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(`[container]
image = "debian@sha256:` + strings.Repeat("a", 64) + `"
bogus_field = true
`))
	if err == nil {
		t.Fatal("Parse accepted unknown key, want error")
	}
}

func TestSort(t *testing.T) {
	pkgs := []Package{
		{System: "debian", Name: "zlib1g", Version: "1"},
		{System: "archlinux", Name: "zlib", Version: "1"},
		{System: "archlinux", Name: "binutils", Version: "2"},
		{System: "archlinux", Name: "binutils", Version: "1"},
	}
	Sort(pkgs)

	want := []string{"archlinux/binutils/1", "archlinux/binutils/2", "archlinux/zlib/1", "debian/zlib1g/1"}
	for i, w := range want {
		got := pkgs[i].System + "/" + pkgs[i].Name + "/" + pkgs[i].Version
		if got != w {
			t.Errorf("pkgs[%d] = %q, want %q", i, got, w)
		}
	}
}

func TestNoPackagesOmitsArray(t *testing.T) {
	l := &Lockfile{Container: Container{Image: "debian@sha256:" + strings.Repeat("a", 64)}}
	data, err := l.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if strings.Contains(string(data), "[[package]]") {
		t.Errorf("expected no [[package]] entries, got: %s", data)
	}
}
