// Package reproerr provides the typed error taxonomy used across repro-env.
//
// Every fallible operation in the resolver, fetcher, cache, and container
// orchestrator returns (or wraps) an *Error carrying one of the Kind values
// below, so the CLI can map a failure to the right process exit code without
// string-matching error messages.
package reproerr

import (
	"errors"
	"fmt"
)

// Kind classifies what went wrong, matching the taxonomy in the error
// handling design: Parse, Network, HashMismatch, SignatureInvalid, Resolve,
// Archive, ContainerEngine, UserCommand.
type Kind int

const (
	KindGeneral Kind = iota
	KindParse
	KindNetwork
	KindHashMismatch
	KindSignatureInvalid
	KindResolve
	KindArchive
	KindContainerEngine
	KindUserCommand
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindNetwork:
		return "network"
	case KindHashMismatch:
		return "hash-mismatch"
	case KindSignatureInvalid:
		return "signature-invalid"
	case KindResolve:
		return "resolve"
	case KindArchive:
		return "archive"
	case KindContainerEngine:
		return "container-engine"
	case KindUserCommand:
		return "user-command"
	default:
		return "general"
	}
}

// exitCodes maps a Kind to a process exit code. UserCommand is deliberately
// absent: its exit code is the forwarded command's own, never one of these.
var exitCodes = map[Kind]int{
	KindGeneral:           1,
	KindParse:             10,
	KindNetwork:           11,
	KindHashMismatch:      12,
	KindSignatureInvalid:  13,
	KindResolve:           14,
	KindArchive:           15,
	KindContainerEngine:   16,
}

// Error is the base error type for repro-env.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the process exit code associated with this error's Kind.
func (e *Error) ExitCode() int {
	if code, ok := exitCodes[e.Kind]; ok {
		return code
	}
	return exitCodes[KindGeneral]
}

// New creates a new Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap wraps an existing error with a typed Error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Common constructors, one per Kind, mirroring the taxonomy in the design.

func Parse(message string, cause error) *Error {
	return Wrap(KindParse, message, cause)
}

func Network(message string, cause error) *Error {
	return Wrap(KindNetwork, message, cause)
}

func HashMismatch(expected, observed string) *Error {
	return New(KindHashMismatch, fmt.Sprintf("hash mismatch: expected=%s observed=%s", expected, observed))
}

func SignatureInvalid(message string, cause error) *Error {
	return Wrap(KindSignatureInvalid, message, cause)
}

func Resolve(message string) *Error {
	return New(KindResolve, message)
}

func AmbiguousProvider(symbol string, candidates []string) *Error {
	return New(KindResolve, fmt.Sprintf("ambiguous provider for %q: candidates=%v", symbol, candidates))
}

func Archive(message string, cause error) *Error {
	return Wrap(KindArchive, message, cause)
}

func ContainerEngine(op string, cause error) *Error {
	return Wrap(KindContainerEngine, fmt.Sprintf("container engine %s failed", op), cause)
}

// GetExitCode extracts the exit code from an error, defaulting to the
// general failure code (1) for errors that aren't one of ours.
func GetExitCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return exitCodes[KindGeneral]
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
