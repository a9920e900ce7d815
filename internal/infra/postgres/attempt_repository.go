package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"quiz-attempt-service/internal/domain"
)

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.QuizAttempt, error) {
	var row attemptRow
	err := s.idb(ctx).NewSelect().Model(&row).Where("id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) FindInProgress(ctx context.Context, quizID, userID string) (domain.QuizAttempt, bool, error) {
	var row attemptRow
	err := s.idb(ctx).NewSelect().Model(&row).
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		Where("status = ?", string(domain.AttemptInProgress)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizAttempt{}, false, nil
	}
	if err != nil {
		return domain.QuizAttempt{}, false, err
	}
	return row.toDomain(), true, nil
}

func (s *Store) LatestNumber(ctx context.Context, quizID, userID string) (int, error) {
	var latest int
	err := s.idb(ctx).NewSelect().Model((*attemptRow)(nil)).
		ColumnExpr("COALESCE(MAX(attempt), 0)").
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		Scan(ctx, &latest)
	return latest, err
}

// CreateAttempt inserts an attempt. Either unique constraint firing means a concurrent
// creator won and surfaces as ErrAttemptConflict.
func (s *Store) CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) error {
	row := newAttemptRow(attempt)
	_, err := s.idb(ctx).NewInsert().Model(&row).Exec(ctx)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrAttemptConflict
	case isForeignKeyViolation(err):
		return domain.ErrQuizNotFound
	}
	return err
}

// FinalizeAttempt is a compare-and-set on status: the row is updated only while it is still
// in from.
func (s *Store) FinalizeAttempt(ctx context.Context, attemptID string, from domain.AttemptStatus, fin domain.Finalization) (domain.QuizAttempt, error) {
	var details interface{}
	if fin.ScoreDetails != nil {
		encoded, err := json.Marshal(fin.ScoreDetails)
		if err != nil {
			return domain.QuizAttempt{}, fmt.Errorf("encode score details: %w", err)
		}
		details = string(encoded)
	}

	var rows []attemptRow
	err := s.idb(ctx).NewUpdate().Model((*attemptRow)(nil)).
		Set("status = ?", string(fin.Status)).
		Set("finished_at = ?", fin.FinishedAt).
		Set("score_details = COALESCE(?::jsonb, score_details)", details).
		Set("version = version + 1").
		Where("id = ?", attemptID).
		Where("status = ?", string(from)).
		Returning("*").
		Scan(ctx, &rows)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if len(rows) == 0 {
		if _, err := s.GetAttempt(ctx, attemptID); err != nil {
			return domain.QuizAttempt{}, err
		}
		return domain.QuizAttempt{}, domain.ErrStaleAttempt
	}
	return rows[0].toDomain(), nil
}

func (s *Store) ListAttempts(ctx context.Context, quizID, userID string) ([]domain.QuizAttempt, error) {
	var rows []attemptRow
	err := s.idb(ctx).NewSelect().Model(&rows).
		Where("quiz_id = ?", quizID).
		Where("user_id = ?", userID).
		OrderExpr("attempt ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuizAttempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
