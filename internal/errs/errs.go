// Package errs defines the small set of error kinds the transport layer
// maps to HTTP status codes in one place.
package errs

import "fmt"

// Kind identifies the handling an error should receive at the transport
// boundary. See the Status function for the kind -> HTTP code mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNotFound   Kind = "not_found"
	KindUpstream   Kind = "upstream"
	KindConflict   Kind = "conflict"
)

// Error is a kinded error. Conflict errors are handled as idempotent
// success by callers that know to check for them (see IsConflict).
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's handling kind.
func (e *Error) Kind() Kind { return e.kind }

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Validationf builds a ValidationError: bad or missing parameter, bad
// URL, unknown action.
func Validationf(format string, args ...interface{}) error {
	return newf(KindValidation, format, args...)
}

// Authf builds an AuthError.
func Authf(format string, args ...interface{}) error {
	return newf(KindAuth, format, args...)
}

// NotFoundf builds a NotFoundError for a missing channel/feed/item.
func NotFoundf(format string, args ...interface{}) error {
	return newf(KindNotFound, format, args...)
}

// Upstreamf builds an UpstreamError: fetch failure, hub refusal, parser
// failure.
func Upstreamf(err error, format string, args ...interface{}) error {
	return &Error{kind: KindUpstream, msg: fmt.Sprintf(format, args...), err: err}
}

// Conflictf builds a ConflictError: a duplicate subscription, which
// callers should normally turn into an idempotent success rather than
// surfacing as a failure.
func Conflictf(format string, args ...interface{}) error {
	return newf(KindConflict, format, args...)
}

// KindOf extracts the Kind of err, defaulting to KindUpstream for
// errors that did not originate from this package (an unclassified
// failure is treated as an upstream/internal failure, never surfaced
// as the caller's fault).
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if asErr, ok := err.(*Error); ok {
			e = asErr
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return KindUpstream
	}
	return e.kind
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// Status maps a Kind to the HTTP status code synchronous endpoints
// should return for it.
func Status(k Kind) int {
	switch k {
	case KindValidation:
		return 400
	case KindAuth:
		return 401
	case KindNotFound:
		return 404
	case KindUpstream:
		return 502
	case KindConflict:
		return 200
	default:
		return 500
	}
}
