package app

import (
	"context"

	"quiz-attempt-service/internal/domain"
)

// QuizCatalog loads quiz content (from cache/backing store). Questions come back ordered by
// position.
type QuizCatalog interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	// Invalidate drops any cached copy after the quiz's question set changed.
	Invalidate(ctx context.Context, quizID string) error
}

// AttemptRepository persists attempts. Create must enforce uniqueness of
// (userID, quizID, number) and of a single IN_PROGRESS attempt per (userID, quizID),
// reporting violations as domain.ErrAttemptConflict.
type AttemptRepository interface {
	GetAttempt(ctx context.Context, attemptID string) (domain.QuizAttempt, error)
	FindInProgress(ctx context.Context, quizID, userID string) (domain.QuizAttempt, bool, error)
	LatestNumber(ctx context.Context, quizID, userID string) (int, error)
	CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) error
	// FinalizeAttempt applies fin only while the stored status still equals from,
	// otherwise it returns domain.ErrStaleAttempt.
	FinalizeAttempt(ctx context.Context, attemptID string, from domain.AttemptStatus, fin domain.Finalization) (domain.QuizAttempt, error)
	ListAttempts(ctx context.Context, quizID, userID string) ([]domain.QuizAttempt, error)
}

// ResponseRepository persists scored responses.
type ResponseRepository interface {
	// InsertResponses stores all rows or none; a duplicate natural key yields an
	// error classified as domain.ErrAlreadyExists.
	InsertResponses(ctx context.Context, responses []domain.UserResponse) error
	ListResponses(ctx context.Context, attemptID string) ([]domain.UserResponse, error)
}

// QuestionRepository owns question rows and their dense positions. Each mutating call is
// one atomic unit serialized per quiz.
type QuestionRepository interface {
	GetQuestion(ctx context.Context, questionID string) (domain.QuizQuestion, error)
	ListQuestions(ctx context.Context, quizID string) ([]domain.QuizQuestion, error)
	// AppendQuestion stores q at position count+1 and returns it.
	AppendQuestion(ctx context.Context, q domain.QuizQuestion) (domain.QuizQuestion, error)
	MoveQuestion(ctx context.Context, questionID string, position int) (domain.QuizQuestion, error)
	// DeleteQuestion removes the question, compacts higher positions and returns the removed row.
	DeleteQuestion(ctx context.Context, questionID string) (domain.QuizQuestion, error)
}

// Transactor runs fn in a single atomic unit. Repository calls made with the ctx passed
// to fn join that unit.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes work per key (in-process or across instances).
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func attemptLockKey(quizID, userID string) string {
	return "attempt:" + quizID + ":" + userID
}

func questionsLockKey(quizID string) string {
	return "questions:" + quizID
}
