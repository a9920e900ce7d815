package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quiz-attempt-service/internal/domain"
)

// SaveQuiz upserts a quiz and replaces its questions, positioned in slice order.
func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		db := s.idb(ctx)
		row := quizRow{
			ID:               quiz.ID,
			Title:            quiz.Title,
			AttemptsAllowed:  quiz.AttemptsAllowed,
			TimeLimitSeconds: int(quiz.TimeLimit.Seconds()),
		}
		_, err := db.NewInsert().Model(&row).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("attempts_allowed = EXCLUDED.attempts_allowed").
			Set("time_limit_seconds = EXCLUDED.time_limit_seconds").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert quiz: %w", err)
		}
		if _, err := db.NewDelete().Model((*questionRow)(nil)).Where("quiz_id = ?", quiz.ID).Exec(ctx); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}
		if len(quiz.Questions) == 0 {
			return nil
		}
		rows := make([]questionRow, 0, len(quiz.Questions))
		for i, q := range quiz.Questions {
			q.QuizID = quiz.ID
			q.Position = i + 1
			rows = append(rows, newQuestionRow(q))
		}
		if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}

func (s *Store) GetQuestion(ctx context.Context, questionID string) (domain.QuizQuestion, error) {
	var row questionRow
	err := s.idb(ctx).NewSelect().Model(&row).Where("id = ?", questionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizQuestion{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("get question: %w", err)
	}
	return row.toDomain()
}

func (s *Store) ListQuestions(ctx context.Context, quizID string) ([]domain.QuizQuestion, error) {
	var rows []questionRow
	err := s.idb(ctx).NewSelect().Model(&rows).
		Where("quiz_id = ?", quizID).
		OrderExpr("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuizQuestion, 0, len(rows))
	for _, r := range rows {
		q, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// AppendQuestion stores q after the quiz's last question.
func (s *Store) AppendQuestion(ctx context.Context, q domain.QuizQuestion) (domain.QuizQuestion, error) {
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		count, err := s.lockQuiz(ctx, q.QuizID)
		if err != nil {
			return err
		}
		q.Position = count + 1
		row := newQuestionRow(q)
		if _, err := s.idb(ctx).NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		return nil
	})
	return q, err
}

// MoveQuestion slides the siblings between the old and new slot by one and places the
// question at position. The (quiz_id, position) constraint is checked at commit.
func (s *Store) MoveQuestion(ctx context.Context, questionID string, position int) (domain.QuizQuestion, error) {
	var moved domain.QuizQuestion
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		count, err := s.lockQuiz(ctx, current.QuizID)
		if err != nil {
			return err
		}
		// re-read under the quiz lock
		if current, err = s.GetQuestion(ctx, questionID); err != nil {
			return err
		}
		shift, ok, err := domain.PlanMove(current.Position, position, count)
		if err != nil {
			return err
		}
		moved = current
		if !ok {
			return nil
		}

		db := s.idb(ctx)
		_, err = db.NewUpdate().Model((*questionRow)(nil)).
			Set("position = position + ?", shift.Delta).
			Where("quiz_id = ?", current.QuizID).
			Where("position BETWEEN ? AND ?", shift.From, shift.To).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("shift questions: %w", err)
		}
		_, err = db.NewUpdate().Model((*questionRow)(nil)).
			Set("position = ?", position).
			Where("id = ?", questionID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("place question: %w", err)
		}
		moved.Position = position
		return nil
	})
	return moved, err
}

// DeleteQuestion removes the question and closes the gap above it.
func (s *Store) DeleteQuestion(ctx context.Context, questionID string) (domain.QuizQuestion, error) {
	var removed domain.QuizQuestion
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if _, err := s.lockQuiz(ctx, current.QuizID); err != nil {
			return err
		}
		if current, err = s.GetQuestion(ctx, questionID); err != nil {
			return err
		}

		db := s.idb(ctx)
		if _, err := db.NewDelete().Model((*questionRow)(nil)).Where("id = ?", questionID).Exec(ctx); err != nil {
			return fmt.Errorf("delete question: %w", err)
		}
		_, err = db.NewUpdate().Model((*questionRow)(nil)).
			Set("position = position - 1").
			Where("quiz_id = ?", current.QuizID).
			Where("position > ?", current.Position).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("compact positions: %w", err)
		}
		removed = current
		return nil
	})
	return removed, err
}

// lockQuiz takes the quiz row lock that serializes position changes and returns the
// current question count.
func (s *Store) lockQuiz(ctx context.Context, quizID string) (int, error) {
	db := s.idb(ctx)
	var id string
	err := db.NewSelect().Model((*quizRow)(nil)).
		Column("id").
		Where("id = ?", quizID).
		For("UPDATE").
		Scan(ctx, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrQuizNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock quiz: %w", err)
	}
	count, err := db.NewSelect().Model((*questionRow)(nil)).Where("quiz_id = ?", quizID).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return count, nil
}
