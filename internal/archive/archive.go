// Package archive provides streaming decompressors and archive walkers for
// the formats the supported distributions ship their indices and packages
// in: gzip, zstd, lz4, and xz compression, and tar/ar container formats.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// ErrorKind classifies an archive-layer failure.
type ErrorKind int

const (
	Truncated ErrorKind = iota
	Corrupt
	UnsupportedVariant
)

func (k ErrorKind) String() string {
	switch k {
	case Truncated:
		return "truncated"
	case UnsupportedVariant:
		return "unsupported-variant"
	default:
		return "corrupt"
	}
}

// Error is the typed error returned by this package's decoders and walkers.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func wrapErr(kind ErrorKind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Format identifies a compression codec.
type Format int

const (
	FormatNone Format = iota
	FormatGzip
	FormatZstd
	FormatLZ4
	FormatXz
)

var magics = []struct {
	format Format
	magic  []byte
}{
	{FormatGzip, []byte{0x1f, 0x8b}},
	{FormatZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{FormatLZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
	{FormatXz, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
}

// Detect sniffs the compression format from a buffer's leading bytes.
// Returns FormatNone if no known magic matches (the data is assumed to be
// uncompressed).
func Detect(data []byte) Format {
	for _, m := range magics {
		if bytes.HasPrefix(data, m.magic) {
			return m.format
		}
	}
	return FormatNone
}

// Decompress wraps r in a streaming decoder for format, or returns r
// unchanged for FormatNone. The returned reader must be fully drained (or
// closed, for formats that return an io.ReadCloser) by the caller.
func Decompress(format Format, r io.Reader) (io.Reader, error) {
	switch format {
	case FormatGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, wrapErr(Corrupt, "failed to open gzip stream", err)
		}
		return gz, nil
	case FormatZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, wrapErr(Corrupt, "failed to open zstd stream", err)
		}
		return &zstdReadCloser{dec}, nil
	case FormatLZ4:
		return lz4.NewReader(r), nil
	case FormatXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, wrapErr(Corrupt, "failed to open xz stream", err)
		}
		return xr, nil
	case FormatNone:
		return r, nil
	default:
		return nil, wrapErr(UnsupportedVariant, "unknown compression format", nil)
	}
}

// zstdReadCloser adapts *zstd.Decoder (whose Close takes no error) to
// io.ReadCloser.
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// DecompressAuto peeks the leading bytes of r to detect the compression
// format and returns a decoded stream. Used where the caller doesn't know
// in advance whether a mirror served gzip, zstd, or a raw file.
func DecompressAuto(r io.Reader) (io.Reader, Format, error) {
	br := bufio.NewReaderSize(r, 4096)
	peek, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, FormatNone, wrapErr(Truncated, "failed to peek stream header", err)
	}

	format := Detect(peek)
	dec, err := Decompress(format, br)
	if err != nil {
		return nil, format, err
	}
	return dec, format, nil
}

// TarEntryFunc is invoked once per tar entry; r is scoped to that entry's
// content and must not be retained past the call.
type TarEntryFunc func(hdr *tar.Header, r io.Reader) error

// WalkTar streams tar entries from r, invoking fn for each.
func WalkTar(r io.Reader, fn TarEntryFunc) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return wrapErr(Truncated, "failed to read tar entry", err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// ArEntryFunc is invoked once per ar member; r is scoped to that member's
// content and must not be retained past the call.
type ArEntryFunc func(hdr *ar.Header, r io.Reader) error

// WalkAr streams ar members from r (used for .deb outer archives),
// invoking fn for each.
func WalkAr(r io.Reader, fn ArEntryFunc) error {
	reader := ar.NewReader(r)
	for {
		hdr, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return wrapErr(Truncated, "failed to read ar entry", err)
		}
		if err := fn(hdr, reader); err != nil {
			return err
		}
	}
}
