package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrGameNotFound is returned when no practice game exists for a PIN.
	ErrGameNotFound = errors.New("game not found")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in game")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates there is no question at the requested index.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAnswerType indicates an answer does not match the question variant.
	ErrAnswerType = errors.New("answer does not match question type")
	// ErrUnknownQuestionType indicates a question type tag outside the registry.
	ErrUnknownQuestionType = errors.New("unknown question type")
	// ErrAlreadySubmitted is returned for a second submission on the same question.
	ErrAlreadySubmitted = errors.New("answer already submitted")
	// ErrNotAccepting is returned when a submission arrives outside the answering window.
	ErrNotAccepting = errors.New("answers are not being accepted")
	// ErrReadOnly is returned by a transport that degraded after exhausting its retries.
	ErrReadOnly = errors.New("transport is read-only")
	// ErrFullURL rejects absolute URLs stored as image paths.
	ErrFullURL = errors.New("image path must not be a full URL")
)

// ErrorKind enumerates the failure classes the client reacts to.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransport
	KindValidation
	KindRendering
	KindTimer
	KindDuplicateSubmission
	KindUnknownType
	KindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindRendering:
		return "rendering"
	case KindTimer:
		return "timer"
	case KindDuplicateSubmission:
		return "duplicate-submission"
	case KindUnknownType:
		return "unknown-type"
	case KindProtocol:
		return "protocol"
	}
	return "unknown"
}

// Surfaced reports whether failures of this kind produce a user-visible notice.
func (k ErrorKind) Surfaced() bool {
	switch k {
	case KindTransport, KindValidation, KindProtocol:
		return true
	}
	return false
}

// Error attaches a kind and operation name to an underlying error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a kinded error.
func E(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
