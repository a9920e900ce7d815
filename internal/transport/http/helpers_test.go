package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

func newTestServer(t *testing.T, quizzes ...domain.Quiz) *httptest.Server {
	t.Helper()
	store := memory.NewStore()
	for _, q := range quizzes {
		store.PutQuiz(q)
	}
	catalog := memory.NewQuizRepository(store, time.Minute)
	locker := memory.NewLocker()
	attempts := app.NewAttemptService(store, catalog, locker)
	handler := NewHandler(Services{
		Attempts:    attempts,
		Submissions: app.NewSubmissionService(attempts, store, store, catalog, app.NewScorer(app.RuleExact), store),
		Questions:   app.NewQuestionService(store, catalog, locker),
		Catalog:     catalog,
	}, nil)
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)
	return server
}

func sampleQuiz(timeLimit time.Duration) domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-1",
		Title:           "Arithmetic",
		AttemptsAllowed: 1,
		TimeLimit:       timeLimit,
		Questions: []domain.QuizQuestion{
			{
				ID:      "q1",
				Type:    domain.MCQSingle,
				Prompt:  "What is 2 + 2?",
				Options: []string{"3", "4", "5"},
				Key:     domain.SingleChoiceKey{Choice: "4"},
				Points:  decimal.NewFromInt(5),
			},
			{
				ID:     "q2",
				Type:   domain.ShortAnswer,
				Prompt: "Spell 4",
				Key:    domain.ShortAnswerKey{Text: "four"},
				Points: decimal.NewFromInt(5),
			},
		},
	}
}
