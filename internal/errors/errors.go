package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes pipeline failures. Every error that crosses a package
// boundary carries one so the CLI can map it to a distinct exit code.
type Kind int

const (
	// KindInternal - unexpected internal state, catch-all
	KindInternal Kind = iota
	// KindDateRange - visualization window start after end
	KindDateRange
	// KindRepositoryAccess - path missing, unreadable, or not a git repository
	KindRepositoryAccess
	// KindIdentityConflict - operation referenced a canonical name that does not exist
	KindIdentityConflict
	// KindRendererInvocation - renderer binary missing or exited non-zero
	KindRendererInvocation
	// KindEncoderInvocation - encoder binary missing or exited non-zero
	KindEncoderInvocation
	// KindConfigPersistence - identity store or config file unreadable/unwritable
	KindConfigPersistence
)

// Exit codes per kind. 0 is success, 1 is reserved for unclassified errors.
const (
	ExitOK                = 0
	ExitInternal          = 1
	ExitDateRange         = 2
	ExitRepositoryAccess  = 3
	ExitIdentityConflict  = 4
	ExitRendererFailed    = 5
	ExitEncoderFailed     = 6
	ExitConfigPersistence = 7
)

// Error is a categorized pipeline error. Detail names the offending
// path or identifier when there is one.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind, so errors.Is(err, &Error{Kind: k}) and the
// sentinel helpers below work across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func kindString(k Kind) string {
	switch k {
	case KindDateRange:
		return "DATE_RANGE"
	case KindRepositoryAccess:
		return "REPOSITORY_ACCESS"
	case KindIdentityConflict:
		return "IDENTITY_CONFLICT"
	case KindRendererInvocation:
		return "RENDERER"
	case KindEncoderInvocation:
		return "ENCODER"
	case KindConfigPersistence:
		return "CONFIG_PERSISTENCE"
	default:
		return "INTERNAL"
	}
}

// String returns the stable name of the kind, used in log fields.
func (k Kind) String() string { return kindString(k) }

// New creates an error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error with the given kind and a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a kind and message. Returns nil when
// err is nil so call sites can wrap unconditionally.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// WithDetail attaches the offending path or identifier.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// Convenience constructors, one per kind in the taxonomy.

// DateRange reports an invalid visualization window.
func DateRange(message string) *Error {
	return New(KindDateRange, message)
}

// RepositoryAccess reports an unreadable or non-repository path.
func RepositoryAccess(path string, cause error) *Error {
	return &Error{Kind: KindRepositoryAccess, Message: "repository not accessible", Detail: path, Cause: cause}
}

// IdentityConflict reports an operation against an unknown canonical name.
func IdentityConflict(name string) *Error {
	return &Error{Kind: KindIdentityConflict, Message: "unknown canonical name", Detail: name}
}

// RendererInvocation reports a renderer start or exit failure.
func RendererInvocation(cause error, message string) *Error {
	return Wrap(cause, KindRendererInvocation, message)
}

// EncoderInvocation reports an encoder start or exit failure.
func EncoderInvocation(cause error, message string) *Error {
	return Wrap(cause, KindEncoderInvocation, message)
}

// ConfigPersistence reports an identity store or config read/write failure.
func ConfigPersistence(cause error, message string) *Error {
	return Wrap(cause, KindConfigPersistence, message)
}

// Internal reports an unexpected internal failure.
func Internal(cause error, message string) *Error {
	if cause == nil {
		return New(KindInternal, message)
	}
	return Wrap(cause, KindInternal, message)
}

// KindOf extracts the kind from an error chain, KindInternal when the
// chain carries no categorized error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ExitCode maps an error to the process exit code contract: one distinct
// code per kind, 1 for anything unclassified, 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindDateRange:
		return ExitDateRange
	case KindRepositoryAccess:
		return ExitRepositoryAccess
	case KindIdentityConflict:
		return ExitIdentityConflict
	case KindRendererInvocation:
		return ExitRendererFailed
	case KindEncoderInvocation:
		return ExitEncoderFailed
	case KindConfigPersistence:
		return ExitConfigPersistence
	default:
		return ExitInternal
	}
}
