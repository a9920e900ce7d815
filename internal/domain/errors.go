package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound classifies unresolved quiz, attempt or question identifiers.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState classifies caller-input problems: illegal transitions, out of range
	// positions, malformed answers and exhausted attempt limits.
	ErrInvalidState = errors.New("invalid state")
	// ErrAlreadyExists classifies duplicate responses for the same attempt and question.
	ErrAlreadyExists = errors.New("already exists")
)

var (
	// ErrQuizNotFound is returned when the quiz content could not be loaded.
	ErrQuizNotFound = &Error{Kind: ErrNotFound, Field: "quizId", Message: "quiz not found"}
	// ErrAttemptNotFound is returned for unknown attempt ids.
	ErrAttemptNotFound = &Error{Kind: ErrNotFound, Field: "attemptId", Message: "quiz attempt not found"}
	// ErrQuestionNotFound indicates a question id that does not resolve (or belongs to another quiz).
	ErrQuestionNotFound = &Error{Kind: ErrNotFound, Field: "questionId", Message: "question not found"}
	// ErrAttemptIDRequired is returned by submissions without an attempt id.
	ErrAttemptIDRequired = &Error{Kind: ErrInvalidState, Field: "attemptId", Message: "attempt id required"}
)

var (
	// ErrAttemptConflict is raised by attempt stores when an insert loses a uniqueness race.
	ErrAttemptConflict = errors.New("attempt insert conflict")
	// ErrStaleAttempt is raised by attempt stores when a compare-and-set status update misses.
	ErrStaleAttempt = errors.New("attempt changed concurrently")
)

// Error is a classified, user-presentable failure. Kind is one of ErrNotFound,
// ErrInvalidState or ErrAlreadyExists.
type Error struct {
	Kind    error
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// NotFound builds an ErrNotFound error for field.
func NotFound(field, format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidState builds an ErrInvalidState error for field.
func InvalidState(field, format string, args ...any) error {
	return &Error{Kind: ErrInvalidState, Field: field, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists builds an ErrAlreadyExists error for field.
func AlreadyExists(field, format string, args ...any) error {
	return &Error{Kind: ErrAlreadyExists, Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidAnswerFormat reports an answer or option payload that could not be parsed.
func InvalidAnswerFormat(field string, cause error) error {
	msg := "invalid answer format for " + field
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return &Error{Kind: ErrInvalidState, Field: field, Message: msg}
}

// FieldOf returns the offending field of a classified error, if any.
func FieldOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Field
	}
	return ""
}
