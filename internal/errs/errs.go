// Package errs names the error kinds from the system's error-handling
// design so callers can branch on kind rather than string-match.
package errs

import "errors"

// Kind classifies an error the way the pipeline's consumers need to:
// distinctly enough to decide retry vs. skip vs. swallow, never to
// surface a user-facing error code.
type Kind int

const (
	// KindTransient covers HTTP 5xx / timeouts / socket drops on an
	// external dependency. Retryable with backoff.
	KindTransient Kind = iota
	// KindMalformed covers a payload that failed to parse or match
	// its expected schema. The one record is skipped; the stream stays up.
	KindMalformed
	// KindPolicy covers a rate/quality rejection: explicitly not an
	// error, logged at most at debug.
	KindPolicy
	// KindPersistence covers a state-file write/read failure. Logged,
	// swallowed; in-memory state remains authoritative.
	KindPersistence
	// KindInvariant covers a reconstructed-value mismatch (e.g. the
	// paper engine's balance migration). Logged at warn, auto-corrected.
	KindInvariant
)

// Error wraps an underlying cause with a Kind so callers can recover
// it with errors.As without string-matching messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func Transient(op string, err error) error   { return &Error{Kind: KindTransient, Op: op, Err: err} }
func Malformed(op string, err error) error   { return &Error{Kind: KindMalformed, Op: op, Err: err} }
func Policy(op string, err error) error      { return &Error{Kind: KindPolicy, Op: op, Err: err} }
func Persistence(op string, err error) error { return &Error{Kind: KindPersistence, Op: op, Err: err} }
func Invariant(op string, err error) error   { return &Error{Kind: KindInvariant, Op: op, Err: err} }

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
