package container

import "strings"

// ImageRef is a parsed container image reference: a repository plus an
// optional tag and an optional digest.
type ImageRef struct {
	Repo   string
	Tag    string
	Digest string
}

// ParseImageRef splits a reference like "rust:1-alpine" or
// "rust@sha256:...". A bare repo name (neither ':' nor '@') parses with
// both Tag and Digest empty.
func ParseImageRef(s string) ImageRef {
	if repo, digest, ok := strings.Cut(s, "@"); ok {
		return ImageRef{Repo: repo, Digest: digest}
	}
	if repo, tag, ok := strings.Cut(s, ":"); ok {
		return ImageRef{Repo: repo, Tag: tag}
	}
	return ImageRef{Repo: s}
}

// String reassembles the reference in canonical form, preferring Digest
// over Tag when both happen to be set.
func (r ImageRef) String() string {
	switch {
	case r.Digest != "":
		return r.Repo + "@" + r.Digest
	case r.Tag != "":
		return r.Repo + ":" + r.Tag
	default:
		return r.Repo
	}
}

// WithDigest returns a copy of r pinned to digest, discarding any tag.
func (r ImageRef) WithDigest(digest string) ImageRef {
	return ImageRef{Repo: r.Repo, Digest: digest}
}
