// Package fault defines the single error taxonomy of a voice turn and the
// table that maps provider failures onto it.
package fault

import (
	"errors"
	"fmt"
)

// Kind 失败类别
type Kind string

const (
	Unintelligible         Kind = "unintelligible"
	TranscriberUnavailable Kind = "transcriber_unavailable"
	CompletionAuth         Kind = "completion_auth"
	CompletionRateLimited  Kind = "completion_rate_limited"
	CompletionFailed       Kind = "completion_failed"
	SynthesisFailed        Kind = "synthesis_failed"
	Unexpected             Kind = "unexpected"
)

// Sentinels usable with errors.Is.
var (
	ErrUnintelligible         = &Error{Kind: Unintelligible}
	ErrTranscriberUnavailable = &Error{Kind: TranscriberUnavailable}
	ErrCompletionAuth         = &Error{Kind: CompletionAuth}
	ErrCompletionRateLimited  = &Error{Kind: CompletionRateLimited}
	ErrCompletionFailed       = &Error{Kind: CompletionFailed}
	ErrSynthesisFailed        = &Error{Kind: SynthesisFailed}
)

// Error is a categorized failure raised at an adapter boundary.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New creates a categorized error without an underlying cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap attaches a kind to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so sentinels compare by category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the category carried by err, Unexpected when none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != "" {
		return fe.Kind
	}
	return Unexpected
}

// Completion reports whether the kind belongs to the completion service.
func (k Kind) Completion() bool {
	switch k {
	case CompletionAuth, CompletionRateLimited, CompletionFailed:
		return true
	default:
		return false
	}
}

// Transcription reports whether the kind belongs to the transcriber.
func (k Kind) Transcription() bool {
	return k == Unintelligible || k == TranscriberUnavailable
}
