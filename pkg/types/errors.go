package types

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure surfaced by a collaborator or the controller.
type Kind int

const (
	// KindUnknown is the zero value for errors that carry no classification.
	KindUnknown Kind = iota

	// KindPermissionDenied means speech capture is unavailable or was denied.
	// It is terminal: the user has to act before listening can resume.
	KindPermissionDenied

	// KindUnsupportedPlatform means a required capability is missing.
	KindUnsupportedPlatform

	// KindRecognitionFailed is a transient speech-recognition failure,
	// recoverable by listening again.
	KindRecognitionFailed

	// KindTransport is a network-level failure (DNS, connect, timeout) while
	// calling the generation collaborator.
	KindTransport

	// KindService means the generation collaborator was reachable but rejected
	// the request or answered with a malformed body.
	KindService

	// KindSynthesisFailed means speech output failed.
	KindSynthesisFailed

	// KindEmptyReply means the generation response parsed but carried no
	// usable text.
	KindEmptyReply
)

// Sentinel errors, one per [Kind]. Every [*Error] matches the sentinel of
// its kind under [errors.Is].
var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrRecognitionFailed   = errors.New("recognition failed")
	ErrTransport           = errors.New("transport error")
	ErrService             = errors.New("service error")
	ErrSynthesisFailed     = errors.New("synthesis failed")
	ErrEmptyReply          = errors.New("empty reply")
)

var sentinels = map[Kind]error{
	KindPermissionDenied:    ErrPermissionDenied,
	KindUnsupportedPlatform: ErrUnsupportedPlatform,
	KindRecognitionFailed:   ErrRecognitionFailed,
	KindTransport:           ErrTransport,
	KindService:             ErrService,
	KindSynthesisFailed:     ErrSynthesisFailed,
	KindEmptyReply:          ErrEmptyReply,
}

// String returns the snake_case name of the kind, as used in logs, metrics
// attributes and bridge messages.
func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindUnsupportedPlatform:
		return "unsupported_platform"
	case KindRecognitionFailed:
		return "recognition_failed"
	case KindTransport:
		return "transport_error"
	case KindService:
		return "service_error"
	case KindSynthesisFailed:
		return "synthesis_failed"
	case KindEmptyReply:
		return "empty_reply"
	default:
		return "unknown"
	}
}

// Terminal reports whether errors of this kind put the controller into the
// Errored state rather than back to Idle.
func (k Kind) Terminal() bool {
	return k == KindPermissionDenied || k == KindUnsupportedPlatform
}

// Error is the typed failure carried across collaborator boundaries.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op names the failing operation, e.g. "gemini: generate".
	Op string

	// StatusCode is the upstream HTTP status for [KindService] errors, or 0.
	StatusCode int

	// Body is the (possibly truncated) upstream response body, if any.
	Body string

	// Err is the underlying cause, if any.
	Err error
}

// NewError returns an [*Error] of the given kind wrapping err.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	} else if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the [Kind] of err. It understands both [*Error] values and
// the bare sentinels; anything else is [KindUnknown].
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}
