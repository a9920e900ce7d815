package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
)

// AttemptService owns attempt state. It is the only writer of status, finishedAt and
// scoreDetails.
type AttemptService struct {
	attempts AttemptRepository
	quizzes  QuizCatalog
	locker   Locker
	opts     options
}

func NewAttemptService(attempts AttemptRepository, quizzes QuizCatalog, locker Locker, opts ...Option) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		quizzes:  quizzes,
		locker:   locker,
		opts:     buildOptions(opts),
	}
}

// CreateOrResume returns the caller's IN_PROGRESS attempt for the quiz, or starts the next
// numbered attempt when the quiz's limit allows it.
func (s *AttemptService) CreateOrResume(ctx context.Context, quizID, userID string) (domain.AttemptView, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.AttemptView{}, domain.InvalidState("userId", "user id required")
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.AttemptView{}, err
	}

	unlock, err := s.locker.Lock(ctx, attemptLockKey(quizID, userID))
	if err != nil {
		return domain.AttemptView{}, fmt.Errorf("lock attempts: %w", err)
	}
	defer unlock()

	log := s.opts.log.With(zap.String("quizId", quizID), zap.String("userId", userID))
	for try := 0; ; try++ {
		current, ok, err := s.attempts.FindInProgress(ctx, quizID, userID)
		if err != nil {
			return domain.AttemptView{}, fmt.Errorf("find in-progress attempt: %w", err)
		}
		if ok {
			log.Debug("resuming attempt", zap.String("attemptId", current.ID), zap.Int("attempt", current.Number))
			return domain.NewAttemptView(current, quiz.AttemptsAllowed), nil
		}

		latest, err := s.attempts.LatestNumber(ctx, quizID, userID)
		if err != nil {
			return domain.AttemptView{}, fmt.Errorf("count attempts: %w", err)
		}
		next := latest + 1
		if next > quiz.AttemptsAllowed {
			return domain.AttemptView{}, domain.InvalidState("attemptsAllowed",
				"attempt limit exceeded: %d of %d attempts used", latest, quiz.AttemptsAllowed)
		}

		attempt := domain.QuizAttempt{
			ID:        s.opts.newID(),
			QuizID:    quizID,
			UserID:    userID,
			Number:    next,
			Status:    domain.AttemptInProgress,
			StartedAt: s.opts.now(),
		}
		err = s.attempts.CreateAttempt(ctx, attempt)
		if errors.Is(err, domain.ErrAttemptConflict) && try < s.opts.maxRetries {
			log.Warn("attempt insert lost a race, retrying", zap.Int("attempt", next), zap.Int("try", try+1))
			continue
		}
		if err != nil {
			return domain.AttemptView{}, fmt.Errorf("create attempt: %w", err)
		}
		log.Info("attempt started", zap.String("attemptId", attempt.ID), zap.Int("attempt", next))
		return domain.NewAttemptView(attempt, quiz.AttemptsAllowed), nil
	}
}

// Transition moves an IN_PROGRESS attempt into a terminal status, stamping finishedAt and
// storing details verbatim when given. Terminal states are absorbing.
func (s *AttemptService) Transition(ctx context.Context, attemptID string, target domain.AttemptStatus, details *domain.ScoreDetails) (domain.QuizAttempt, error) {
	if !target.Terminal() {
		return domain.QuizAttempt{}, domain.InvalidState("status", "cannot transition attempt to %s", target)
	}
	current, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if current.Status != domain.AttemptInProgress {
		return domain.QuizAttempt{}, alreadyFinalized(current.Status)
	}

	updated, err := s.attempts.FinalizeAttempt(ctx, attemptID, domain.AttemptInProgress, domain.Finalization{
		Status:       target,
		FinishedAt:   s.opts.now(),
		ScoreDetails: details,
	})
	if errors.Is(err, domain.ErrStaleAttempt) {
		latest, getErr := s.attempts.GetAttempt(ctx, attemptID)
		if getErr != nil {
			return domain.QuizAttempt{}, getErr
		}
		s.opts.log.Warn("attempt finalized concurrently",
			zap.String("attemptId", attemptID), zap.String("status", string(latest.Status)))
		return domain.QuizAttempt{}, alreadyFinalized(latest.Status)
	}
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("finalize attempt: %w", err)
	}
	s.opts.log.Info("attempt finalized",
		zap.String("attemptId", attemptID),
		zap.String("status", string(target)),
		zap.Int("attempt", updated.Number))
	return updated, nil
}

func (s *AttemptService) Complete(ctx context.Context, attemptID string, details *domain.ScoreDetails) (domain.QuizAttempt, error) {
	return s.Transition(ctx, attemptID, domain.AttemptCompleted, details)
}

func (s *AttemptService) Abandon(ctx context.Context, attemptID string) (domain.QuizAttempt, error) {
	return s.Transition(ctx, attemptID, domain.AttemptAbandoned, nil)
}

// Timeout marks the attempt TIMED_OUT; details may be nil.
func (s *AttemptService) Timeout(ctx context.Context, attemptID string, details *domain.ScoreDetails) (domain.QuizAttempt, error) {
	return s.Transition(ctx, attemptID, domain.AttemptTimedOut, details)
}

// UpdateAttempt is the administrative status edit. The same state machine rules apply.
func (s *AttemptService) UpdateAttempt(ctx context.Context, attemptID, status string, details *domain.ScoreDetails) (domain.AttemptView, error) {
	target, err := domain.ParseAttemptStatus(status)
	if err != nil {
		return domain.AttemptView{}, err
	}
	updated, err := s.Transition(ctx, attemptID, target, details)
	if err != nil {
		return domain.AttemptView{}, err
	}
	return s.view(ctx, updated)
}

func (s *AttemptService) GetAttempt(ctx context.Context, attemptID string) (domain.AttemptView, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	return s.view(ctx, attempt)
}

// ListAttempts returns the user's attempts at a quiz ordered by attempt number.
func (s *AttemptService) ListAttempts(ctx context.Context, quizID, userID string) ([]domain.AttemptView, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.attempts.ListAttempts(ctx, quizID, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	views := make([]domain.AttemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, domain.NewAttemptView(a, quiz.AttemptsAllowed))
	}
	return views, nil
}

func (s *AttemptService) view(ctx context.Context, attempt domain.QuizAttempt) (domain.AttemptView, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	return domain.NewAttemptView(attempt, quiz.AttemptsAllowed), nil
}

func alreadyFinalized(status domain.AttemptStatus) error {
	return domain.InvalidState("status", "attempt already finalized with status %s", status)
}
