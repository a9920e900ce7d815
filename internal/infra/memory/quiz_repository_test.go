package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quiz-attempt-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	store := NewStore()
	store.PutQuiz(sampleQuiz())
	loader := &countingLoader{QuizLoader: store}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuizRepositoryInvalidate(t *testing.T) {
	store := NewStore()
	store.PutQuiz(sampleQuiz())
	loader := &countingLoader{QuizLoader: store}
	repo := NewQuizRepository(loader, time.Minute)
	ctx := context.Background()

	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, err := store.DeleteQuestion(ctx, "q1"); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	if err := repo.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	quiz, err := repo.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get quiz after invalidate: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].ID != "q2" || quiz.Questions[0].Position != 1 {
		t.Fatalf("expected compacted question list, got %+v", quiz.Questions)
	}
}

func TestQuizRepositoryDropsFillRacingInvalidate(t *testing.T) {
	store := NewStore()
	store.PutQuiz(sampleQuiz())
	loader := &gatedLoader{QuizLoader: store, loaded: make(chan struct{}), release: make(chan struct{})}
	repo := NewQuizRepository(loader, time.Minute)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := repo.GetQuiz(ctx, "quiz-1")
		done <- err
	}()
	<-loader.loaded

	if _, err := store.DeleteQuestion(ctx, "q2"); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	if err := repo.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	close(loader.release)
	if err := <-done; err != nil {
		t.Fatalf("racing get quiz: %v", err)
	}

	quiz, err := repo.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, ok := quiz.Question("q2"); ok || len(quiz.Questions) != 1 {
		t.Fatalf("expected deleted question gone from cache, got %+v", quiz.Questions)
	}
}

func TestQuizRepositoryUnknownQuiz(t *testing.T) {
	repo := NewQuizRepository(NewStore(), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "nope"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

// gatedLoader snapshots the quiz on its first call, then blocks until release is closed.
type gatedLoader struct {
	QuizLoader
	loaded  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (l *gatedLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := l.QuizLoader.LoadQuiz(ctx, quizID)
	first := false
	l.once.Do(func() { first = true })
	if first {
		close(l.loaded)
		<-l.release
	}
	return quiz, err
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-1",
		Title:           "Arithmetic",
		AttemptsAllowed: 2,
		Questions: []domain.QuizQuestion{
			{
				ID:      "q1",
				Type:    domain.MCQSingle,
				Prompt:  "What is 2 + 2?",
				Options: []string{"3", "4", "5"},
				Key:     domain.SingleChoiceKey{Choice: "4"},
				Points:  decimal.NewFromInt(1),
			},
			{
				ID:     "q2",
				Type:   domain.ShortAnswer,
				Prompt: "Spell the number after three",
				Key:    domain.ShortAnswerKey{Text: "four"},
				Points: decimal.NewFromInt(2),
			},
		},
	}
}
