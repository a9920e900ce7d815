package app_test

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

type testEnv struct {
	store       *memory.Store
	catalog     *memory.QuizRepository
	attempts    *app.AttemptService
	submissions *app.SubmissionService
	questions   *app.QuestionService
}

var testNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, quizzes ...domain.Quiz) *testEnv {
	t.Helper()
	store := memory.NewStore()
	for _, q := range quizzes {
		store.PutQuiz(q)
	}
	catalog := memory.NewQuizRepository(store, time.Minute)
	locker := memory.NewLocker()

	var seq atomic.Int64
	opts := []app.Option{
		app.WithClock(func() time.Time { return testNow }),
		app.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
	}
	attempts := app.NewAttemptService(store, catalog, locker, opts...)
	return &testEnv{
		store:       store,
		catalog:     catalog,
		attempts:    attempts,
		submissions: app.NewSubmissionService(attempts, store, store, catalog, app.NewScorer(app.RuleExact), store, opts...),
		questions:   app.NewQuestionService(store, catalog, locker, opts...),
	}
}

// scenarioQuiz is the single-attempt quiz from the end-to-end scenario.
func scenarioQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-1",
		Title:           "Colors and letters",
		AttemptsAllowed: 1,
		Questions: []domain.QuizQuestion{
			{
				ID:      "Q1",
				Type:    domain.MCQSingle,
				Prompt:  "Pick A",
				Options: []string{"A", "B", "C"},
				Key:     domain.SingleChoiceKey{Choice: "A"},
				Points:  decimal.NewFromInt(5),
			},
			{
				ID:     "Q2",
				Type:   domain.ShortAnswer,
				Prompt: "Color of the sky",
				Key:    domain.ShortAnswerKey{Text: "blue"},
				Points: decimal.NewFromInt(5),
			},
		},
	}
}

func multiQuiz(attempts int) domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-multi",
		AttemptsAllowed: attempts,
		Questions: []domain.QuizQuestion{
			{
				ID:      "M1",
				Type:    domain.MCQMultiple,
				Options: []string{"A", "B", "C"},
				Key:     domain.MultipleChoiceKey{Choices: domain.NewChoiceSet("A", "C")},
				Points:  decimal.NewFromInt(3),
			},
			{
				ID:      "M2",
				Type:    domain.MCQSingle,
				Options: []string{"yes", "no"},
				Key:     domain.SingleChoiceKey{Choice: "yes"},
				Points:  decimal.NewFromInt(1),
			},
		},
	}
}

func raw(s string) []byte { return []byte(s) }
