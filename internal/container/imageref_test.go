package container

import "testing"

func TestParseImageRefBare(t *testing.T) {
	r := ParseImageRef("rust")
	want := ImageRef{Repo: "rust"}
	if r != want {
		t.Errorf("ParseImageRef() = %+v, want %+v", r, want)
	}
}

func TestParseImageRefTag(t *testing.T) {
	r := ParseImageRef("rust:1-alpine3.18")
	want := ImageRef{Repo: "rust", Tag: "1-alpine3.18"}
	if r != want {
		t.Errorf("ParseImageRef() = %+v, want %+v", r, want)
	}
}

func TestParseImageRefDigest(t *testing.T) {
	r := ParseImageRef("rust@sha256:28ee8822965a932e229599b59928f8c2655b2a198af30568acf63e8aff0e8a3a")
	want := ImageRef{Repo: "rust", Digest: "sha256:28ee8822965a932e229599b59928f8c2655b2a198af30568acf63e8aff0e8a3a"}
	if r != want {
		t.Errorf("ParseImageRef() = %+v, want %+v", r, want)
	}
}

func TestImageRefString(t *testing.T) {
	cases := []struct {
		ref  ImageRef
		want string
	}{
		{ImageRef{Repo: "rust"}, "rust"},
		{ImageRef{Repo: "rust", Tag: "1-alpine"}, "rust:1-alpine"},
		{ImageRef{Repo: "rust", Digest: "sha256:abc"}, "rust@sha256:abc"},
		{ImageRef{Repo: "rust", Tag: "1-alpine", Digest: "sha256:abc"}, "rust@sha256:abc"},
	}
	for _, c := range cases {
		if got := c.ref.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestImageRefWithDigest(t *testing.T) {
	r := ParseImageRef("rust:1-alpine").WithDigest("sha256:abc")
	want := ImageRef{Repo: "rust", Digest: "sha256:abc"}
	if r != want {
		t.Errorf("WithDigest() = %+v, want %+v", r, want)
	}
}
