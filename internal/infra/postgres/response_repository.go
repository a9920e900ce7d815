package postgres

import (
	"context"
	"fmt"

	"quiz-attempt-service/internal/domain"
)

// InsertResponses writes the batch in one statement; a unique violation rejects all of it.
func (s *Store) InsertResponses(ctx context.Context, responses []domain.UserResponse) error {
	if len(responses) == 0 {
		return nil
	}
	rows := make([]responseRow, 0, len(responses))
	for _, r := range responses {
		rows = append(rows, newResponseRow(r))
	}
	_, err := s.idb(ctx).NewInsert().Model(&rows).Exec(ctx)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.AlreadyExists("questionId", "response already exists for this attempt")
	case isForeignKeyViolation(err):
		return domain.ErrAttemptNotFound
	}
	return fmt.Errorf("insert responses: %w", err)
}

func (s *Store) ListResponses(ctx context.Context, attemptID string) ([]domain.UserResponse, error) {
	var rows []responseRow
	err := s.idb(ctx).NewSelect().Model(&rows).
		Where("attempt_id = ?", attemptID).
		OrderExpr("answered_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
