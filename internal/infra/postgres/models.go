package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"quiz-attempt-service/internal/domain"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID               string    `bun:"id,pk"`
	Title            string    `bun:"title"`
	AttemptsAllowed  int       `bun:"attempts_allowed"`
	TimeLimitSeconds int       `bun:"time_limit_seconds"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:quiz_questions"`

	ID            string          `bun:"id,pk"`
	QuizID        string          `bun:"quiz_id"`
	QuestionType  string          `bun:"question_type"`
	Prompt        string          `bun:"prompt"`
	Options       []string        `bun:"options,type:jsonb"`
	CorrectAnswer json.RawMessage `bun:"correct_answer,type:jsonb"`
	Points        decimal.Decimal `bun:"points,type:numeric"`
	Position      int             `bun:"position"`
}

func newQuestionRow(q domain.QuizQuestion) questionRow {
	options := q.Options
	if options == nil {
		options = []string{}
	}
	return questionRow{
		ID:            q.ID,
		QuizID:        q.QuizID,
		QuestionType:  string(q.Type),
		Prompt:        q.Prompt,
		Options:       options,
		CorrectAnswer: domain.EncodeAnswerKey(q.Key),
		Points:        q.Points,
		Position:      q.Position,
	}
}

func (r questionRow) toDomain() (domain.QuizQuestion, error) {
	return buildQuestion(r.ID, r.QuizID, r.QuestionType, r.Prompt, r.Options, r.CorrectAnswer, r.Points, r.Position)
}

func buildQuestion(id, quizID, questionType, prompt string, options []string, correctAnswer []byte, points decimal.Decimal, position int) (domain.QuizQuestion, error) {
	qt, err := domain.ParseQuestionType(questionType)
	if err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("question %s: %w", id, err)
	}
	key, err := domain.ParseAnswerKey(qt, correctAnswer, options)
	if err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("question %s correct answer: %w", id, err)
	}
	if len(options) == 0 {
		options = nil
	}
	return domain.QuizQuestion{
		ID:       id,
		QuizID:   quizID,
		Type:     qt,
		Prompt:   prompt,
		Options:  options,
		Key:      key,
		Points:   points,
		Position: position,
	}, nil
}

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts"`

	ID           string               `bun:"id,pk"`
	QuizID       string               `bun:"quiz_id"`
	UserID       string               `bun:"user_id"`
	Attempt      int                  `bun:"attempt"`
	Status       string               `bun:"status"`
	StartedAt    time.Time            `bun:"started_at"`
	FinishedAt   *time.Time           `bun:"finished_at"`
	ScoreDetails *domain.ScoreDetails `bun:"score_details,type:jsonb"`
	Version      int                  `bun:"version"`
}

func newAttemptRow(a domain.QuizAttempt) attemptRow {
	return attemptRow{
		ID:           a.ID,
		QuizID:       a.QuizID,
		UserID:       a.UserID,
		Attempt:      a.Number,
		Status:       string(a.Status),
		StartedAt:    a.StartedAt,
		FinishedAt:   a.FinishedAt,
		ScoreDetails: a.ScoreDetails,
		Version:      1,
	}
}

func (r attemptRow) toDomain() domain.QuizAttempt {
	var finishedAt *time.Time
	if r.FinishedAt != nil {
		t := r.FinishedAt.UTC()
		finishedAt = &t
	}
	return domain.QuizAttempt{
		ID:           r.ID,
		QuizID:       r.QuizID,
		UserID:       r.UserID,
		Number:       r.Attempt,
		Status:       domain.AttemptStatus(r.Status),
		StartedAt:    r.StartedAt.UTC(),
		FinishedAt:   finishedAt,
		ScoreDetails: r.ScoreDetails,
		Version:      r.Version,
	}
}

type responseRow struct {
	bun.BaseModel `bun:"table:user_responses"`

	ID           string          `bun:"id,pk"`
	UserID       string          `bun:"user_id"`
	QuizID       string          `bun:"quiz_id"`
	QuestionID   string          `bun:"question_id"`
	AttemptID    string          `bun:"attempt_id"`
	UserAnswer   json.RawMessage `bun:"user_answer,type:jsonb"`
	IsCorrect    bool            `bun:"is_correct"`
	PointsEarned decimal.Decimal `bun:"points_earned,type:numeric"`
	AnsweredAt   time.Time       `bun:"answered_at"`
}

func newResponseRow(r domain.UserResponse) responseRow {
	answer := r.UserAnswer
	if len(answer) == 0 {
		answer = json.RawMessage("null")
	}
	return responseRow{
		ID:           r.ID,
		UserID:       r.UserID,
		QuizID:       r.QuizID,
		QuestionID:   r.QuestionID,
		AttemptID:    r.AttemptID,
		UserAnswer:   answer,
		IsCorrect:    r.IsCorrect,
		PointsEarned: r.PointsEarned,
		AnsweredAt:   r.AnsweredAt,
	}
}

func (r responseRow) toDomain() domain.UserResponse {
	return domain.UserResponse{
		ID:           r.ID,
		UserID:       r.UserID,
		QuizID:       r.QuizID,
		QuestionID:   r.QuestionID,
		AttemptID:    r.AttemptID,
		UserAnswer:   r.UserAnswer,
		IsCorrect:    r.IsCorrect,
		PointsEarned: r.PointsEarned,
		AnsweredAt:   r.AnsweredAt.UTC(),
	}
}
