package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := memory.NewStore()
	store.PutQuiz(sampleQuiz())
	loader := &countingLoader{QuizLoader: store}
	repo := NewQuizRepository(newClient(mr), loader, time.Minute, nil)

	first, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:quiz-1") {
		t.Fatalf("expected cache hash to be written")
	}
	if ttl := mr.TTL("quiz:quiz-1"); ttl < time.Minute || ttl > 66*time.Second {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	// Second call should hit cache, loader not incremented.
	second, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}

	if second.AttemptsAllowed != first.AttemptsAllowed || len(second.Questions) != 2 {
		t.Fatalf("cached quiz differs: %+v", second)
	}
	if second.Questions[0].ID != "q1" || second.Questions[1].Position != 2 {
		t.Fatalf("cached questions out of order: %+v", second.Questions)
	}
	key, ok := second.Questions[0].Key.(domain.SingleChoiceKey)
	if !ok || key.Choice != "4" {
		t.Fatalf("answer key lost in cache: %#v", second.Questions[0].Key)
	}
	if !second.Questions[1].Points.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("points lost in cache: %s", second.Questions[1].Points)
	}
}

func TestQuizRepositoryInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := memory.NewStore()
	store.PutQuiz(sampleQuiz())
	loader := &countingLoader{QuizLoader: store}
	repo := NewQuizRepository(newClient(mr), loader, time.Minute, nil)

	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if err := repo.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("quiz:quiz-1") {
		t.Fatalf("expected cache hash to be removed")
	}
	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz after invalidate: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload, loader calls=%d", loader.calls)
	}
}

func TestQuizRepositorySkipsFillRacingInvalidate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := memory.NewStore()
	store.PutQuiz(sampleQuiz())
	loader := &gatedLoader{QuizLoader: store, loaded: make(chan struct{}), release: make(chan struct{})}
	repo := NewQuizRepository(newClient(mr), loader, time.Minute, nil)

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
	if mr.Exists("quiz:quiz-1") {
		t.Fatalf("stale snapshot written to cache")
	}

	quiz, err := repo.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, ok := quiz.Question("q2"); ok || len(quiz.Questions) != 1 {
		t.Fatalf("expected deleted question gone, got %+v", quiz.Questions)
	}
	if !mr.Exists("quiz:quiz-1") {
		t.Fatalf("expected fresh fill after invalidation")
	}
}

func TestQuizRepositoryPassesThroughNotFound(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewQuizRepository(newClient(mr), memory.NewStore(), time.Minute, nil)
	if _, err := repo.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if mr.Exists("quiz:missing") {
		t.Fatalf("misses must not be cached")
	}
}

func TestQuizRepositoryDropsCorruptEntry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := memory.NewStore()
	store.PutQuiz(sampleQuiz())
	loader := &countingLoader{QuizLoader: store}
	repo := NewQuizRepository(newClient(mr), loader, time.Minute, nil)

	mr.HSet("quiz:quiz-1", "q:q1", "{not json")
	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 || len(quiz.Questions) != 2 {
		t.Fatalf("expected reload from loader, calls=%d questions=%d", loader.calls, len(quiz.Questions))
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
		TimeLimit:       10 * time.Minute,
		Questions: []domain.QuizQuestion{
			{
				ID:      "q1",
				Type:    domain.MCQSingle,
				Prompt:  "What is 2 + 2?",
				Options: []string{"3", "4"},
				Key:     domain.SingleChoiceKey{Choice: "4"},
				Points:  decimal.NewFromInt(1),
			},
			{
				ID:     "q2",
				Type:   domain.ShortAnswer,
				Prompt: "Spell 4",
				Key:    domain.ShortAnswerKey{Text: "four"},
				Points: decimal.RequireFromString("2.5"),
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
