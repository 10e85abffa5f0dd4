package registry

// Reason enumerates why a question fails validation.
type Reason string

const (
	ReasonUnknownType         Reason = "unknown-type"
	ReasonMissingText         Reason = "question-text-required"
	ReasonTimeLimit           Reason = "time-limit-invalid"
	ReasonTooFewOptions       Reason = "too-few-options"
	ReasonEmptyOption         Reason = "empty-option"
	ReasonCorrectIndexRange   Reason = "correct-index-out-of-range"
	ReasonNoCorrectOption     Reason = "no-correct-option"
	ReasonCorrectIndicesRange Reason = "correct-indices-out-of-range"
	ReasonInvalidNumber       Reason = "invalid-number"
	ReasonNegativeTolerance   Reason = "negative-tolerance"
	ReasonOrderNotPermutation Reason = "order-not-permutation"
)

var messages = map[Reason]string{
	ReasonUnknownType:         "Unknown question type",
	ReasonMissingText:         "Question text is required",
	ReasonTimeLimit:           "Time limit must be greater than zero",
	ReasonTooFewOptions:       "At least two options are required",
	ReasonEmptyOption:         "Options must not be empty",
	ReasonCorrectIndexRange:   "The correct answer must be one of the options",
	ReasonNoCorrectOption:     "Select at least one correct option",
	ReasonCorrectIndicesRange: "Every correct answer must be one of the options",
	ReasonInvalidNumber:       "The correct answer must be a number",
	ReasonNegativeTolerance:   "Tolerance must not be negative",
	ReasonOrderNotPermutation: "The correct order must list every item exactly once",
}

// Message is the default (English) text for r. Callers with a
// translation table key on r itself.
func (r Reason) Message() string {
	if m, ok := messages[r]; ok {
		return m
	}
	return string(r)
}

// Validation is the result of validate.
type Validation struct {
	Valid  bool
	Reason Reason
}

// Error returns the message for an invalid result, or "".
func (v Validation) Error() string {
	if v.Valid {
		return ""
	}
	return v.Reason.Message()
}

func valid() Validation { return Validation{Valid: true} }

func invalid(r Reason) Validation { return Validation{Reason: r} }
