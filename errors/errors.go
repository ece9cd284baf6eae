// Package errors provides error handling for lsmux.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrRequestTimedOut) {
//	    // handle timeout
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the installer and extraction layer.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the kind.
var (
	// ErrArchiveNotFound indicates the archive to extract does not exist
	ErrArchiveNotFound = New("archive not found")

	// ErrInstallCommandFailed indicates an external install command exited
	// non-zero or failed to spawn
	ErrInstallCommandFailed = New("install command failed")

	// ErrDownloadFailed indicates a dependency artifact could not be fetched
	ErrDownloadFailed = New("download failed")

	// ErrDependencyInstallIncomplete indicates an install claimed success but
	// the expected binary is absent
	ErrDependencyInstallIncomplete = New("dependency install incomplete")
)

// Sentinel errors for the wire protocol layer.
var (
	// ErrMalformedHeader indicates unparseable message framing; decoding
	// cannot resynchronize past it
	ErrMalformedHeader = New("malformed header")

	// ErrMethodNotFound indicates an incoming request named a method with no
	// registered handler
	ErrMethodNotFound = New("method not found")
)

// Sentinel errors for the supervisor and registry layer.
var (
	// ErrRequestTimedOut indicates a request's deadline elapsed with no
	// matching response
	ErrRequestTimedOut = New("request timed out")

	// ErrServerTerminated indicates the child process exited while requests
	// were still pending
	ErrServerTerminated = New("server terminated")

	// ErrUnknownLanguage indicates no backend is registered for a language
	ErrUnknownLanguage = New("unknown language")
)

// IsTimeout checks if an error is or wraps ErrRequestTimedOut
func IsTimeout(err error) bool {
	return err != nil && Is(err, ErrRequestTimedOut)
}

// IsTerminated checks if an error is or wraps ErrServerTerminated
func IsTerminated(err error) bool {
	return err != nil && Is(err, ErrServerTerminated)
}

// NewUnknownLanguage creates an unknown-language error naming the language
func NewUnknownLanguage(language string) error {
	return Wrapf(ErrUnknownLanguage, "no backend registered for language %q", language)
}
