package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"quiz-attempt-service/internal/domain"
)

// QuizLoader reads a quiz and its ordered questions from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		quiz        domain.Quiz
		limitSecond int
	)
	err := l.pool.QueryRow(ctx,
		`SELECT id, title, attempts_allowed, time_limit_seconds FROM quizzes WHERE id=$1`, quizID).
		Scan(&quiz.ID, &quiz.Title, &quiz.AttemptsAllowed, &limitSecond)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	quiz.TimeLimit = time.Duration(limitSecond) * time.Second

	rows, err := l.pool.Query(ctx,
		`SELECT id, question_type, prompt, options, correct_answer, points::text, position
		   FROM quiz_questions WHERE quiz_id=$1 ORDER BY position`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, questionType, prompt, points string
			rawOptions, correctAnswer        []byte
			position                         int
		)
		if err := rows.Scan(&id, &questionType, &prompt, &rawOptions, &correctAnswer, &points, &position); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		var options []string
		if err := json.Unmarshal(rawOptions, &options); err != nil {
			return domain.Quiz{}, fmt.Errorf("unmarshal options of %s: %w", id, err)
		}
		value, err := decimal.NewFromString(points)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("parse points of %s: %w", id, err)
		}
		question, err := buildQuestion(id, quizID, questionType, prompt, options, correctAnswer, value, position)
		if err != nil {
			return domain.Quiz{}, err
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}
