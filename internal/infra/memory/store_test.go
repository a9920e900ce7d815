package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quiz-attempt-service/internal/domain"
)

func TestCreateAttemptEnforcesUniqueness(t *testing.T) {
	store := NewStore()
	store.PutQuiz(sampleQuiz())
	ctx := context.Background()

	first := domain.QuizAttempt{ID: "a1", QuizID: "quiz-1", UserID: "u1", Number: 1, Status: domain.AttemptInProgress, StartedAt: time.Now()}
	if err := store.CreateAttempt(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	sameNumber := first
	sameNumber.ID = "a2"
	if err := store.CreateAttempt(ctx, sameNumber); !errors.Is(err, domain.ErrAttemptConflict) {
		t.Fatalf("expected conflict on duplicate number, got %v", err)
	}

	secondOpen := first
	secondOpen.ID = "a3"
	secondOpen.Number = 2
	if err := store.CreateAttempt(ctx, secondOpen); !errors.Is(err, domain.ErrAttemptConflict) {
		t.Fatalf("expected conflict on second in-progress attempt, got %v", err)
	}
}

func TestFinalizeAttemptIsCompareAndSet(t *testing.T) {
	store := NewStore()
	store.PutQuiz(sampleQuiz())
	ctx := context.Background()
	_ = store.CreateAttempt(ctx, domain.QuizAttempt{ID: "a1", QuizID: "quiz-1", UserID: "u1", Number: 1, Status: domain.AttemptInProgress})

	fin := domain.Finalization{Status: domain.AttemptAbandoned, FinishedAt: time.Now()}
	updated, err := store.FinalizeAttempt(ctx, "a1", domain.AttemptInProgress, fin)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if updated.Status != domain.AttemptAbandoned || updated.FinishedAt == nil || updated.Version != 2 {
		t.Fatalf("unexpected attempt after finalize: %+v", updated)
	}

	if _, err := store.FinalizeAttempt(ctx, "a1", domain.AttemptInProgress, fin); !errors.Is(err, domain.ErrStaleAttempt) {
		t.Fatalf("expected stale attempt, got %v", err)
	}
	if _, err := store.FinalizeAttempt(ctx, "missing", domain.AttemptInProgress, fin); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	store := NewStore()
	store.PutQuiz(sampleQuiz())
	ctx := context.Background()
	_ = store.CreateAttempt(ctx, domain.QuizAttempt{ID: "a1", QuizID: "quiz-1", UserID: "u1", Number: 1, Status: domain.AttemptInProgress})

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context) error {
		if err := store.InsertResponses(ctx, []domain.UserResponse{response("a1", "q1")}); err != nil {
			return err
		}
		if _, err := store.FinalizeAttempt(ctx, "a1", domain.AttemptInProgress, domain.Finalization{Status: domain.AttemptCompleted, FinishedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	responses, _ := store.ListResponses(ctx, "a1")
	if len(responses) != 0 {
		t.Fatalf("expected responses rolled back, got %d", len(responses))
	}
	attempt, _ := store.GetAttempt(ctx, "a1")
	if attempt.Status != domain.AttemptInProgress || attempt.FinishedAt != nil {
		t.Fatalf("expected attempt rolled back, got %+v", attempt)
	}
}

func TestInsertResponsesIsAllOrNothing(t *testing.T) {
	store := NewStore()
	store.PutQuiz(sampleQuiz())
	ctx := context.Background()
	_ = store.CreateAttempt(ctx, domain.QuizAttempt{ID: "a1", QuizID: "quiz-1", UserID: "u1", Number: 1, Status: domain.AttemptInProgress})

	if err := store.InsertResponses(ctx, []domain.UserResponse{response("a1", "q1")}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := store.InsertResponses(ctx, []domain.UserResponse{response("a1", "q2"), response("a1", "q1")})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	responses, _ := store.ListResponses(ctx, "a1")
	if len(responses) != 1 {
		t.Fatalf("expected the failed batch to write nothing, got %d rows", len(responses))
	}
}

func TestQuestionPositionsStayDense(t *testing.T) {
	store := NewStore()
	store.PutQuiz(domain.Quiz{ID: "quiz-1", AttemptsAllowed: 1})
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		q, err := store.AppendQuestion(ctx, domain.QuizQuestion{
			ID:     fmt.Sprintf("q%d", i),
			QuizID: "quiz-1",
			Type:   domain.ShortAnswer,
			Key:    domain.ShortAnswerKey{Text: "x"},
			Points: decimal.NewFromInt(1),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if q.Position != i {
			t.Fatalf("expected position %d, got %d", i, q.Position)
		}
	}

	if _, err := store.MoveQuestion(ctx, "q1", 5); err == nil || err.Error() != "Position must be between 1 and 4" {
		t.Fatalf("expected range error, got %v", err)
	}
	if _, err := store.MoveQuestion(ctx, "q4", 2); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := store.DeleteQuestion(ctx, "q1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	questions, _ := store.ListQuestions(ctx, "quiz-1")
	if err := domain.CheckDense(questions); err != nil {
		t.Fatalf("positions not dense: %v", err)
	}
	order := ""
	for _, q := range questions {
		order += q.ID
	}
	if order != "q4q2q3" {
		t.Fatalf("unexpected order %s", order)
	}
}

func response(attemptID, questionID string) domain.UserResponse {
	return domain.UserResponse{
		ID:           attemptID + "-" + questionID,
		UserID:       "u1",
		QuizID:       "quiz-1",
		QuestionID:   questionID,
		AttemptID:    attemptID,
		UserAnswer:   []byte(`"x"`),
		PointsEarned: decimal.Zero,
	}
}
