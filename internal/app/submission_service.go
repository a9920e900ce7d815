package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// SubmissionService scores submitted answers, persists them and finalizes the attempt
// through AttemptService. It never writes attempt status itself.
type SubmissionService struct {
	lifecycle *AttemptService
	attempts  AttemptRepository
	responses ResponseRepository
	quizzes   QuizCatalog
	scorer    *Scorer
	tx        Transactor
	opts      options
}

func NewSubmissionService(
	lifecycle *AttemptService,
	attempts AttemptRepository,
	responses ResponseRepository,
	quizzes QuizCatalog,
	scorer *Scorer,
	tx Transactor,
	opts ...Option,
) *SubmissionService {
	return &SubmissionService{
		lifecycle: lifecycle,
		attempts:  attempts,
		responses: responses,
		quizzes:   quizzes,
		scorer:    scorer,
		tx:        tx,
		opts:      buildOptions(opts),
	}
}

// Submit scores and stores inputs, aggregates the attempt's responses and finalizes it:
// MANUAL completes the attempt, AUTO_TIMEOUT times it out. Nothing is written unless the
// whole submission is accepted.
func (s *SubmissionService) Submit(ctx context.Context, attemptID string, inputs []domain.ResponseInput, kind domain.SubmissionType) (domain.SubmissionResult, error) {
	if strings.TrimSpace(attemptID) == "" {
		return domain.SubmissionResult{}, domain.ErrAttemptIDRequired
	}
	if kind != domain.SubmissionManual && kind != domain.SubmissionAutoTimeout {
		return domain.SubmissionResult{}, domain.InvalidState("submissionType", "unsupported submission type %q", kind)
	}
	attempt, quiz, err := s.openAttempt(ctx, attemptID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}

	scored, universe, err := s.scoreInputs(quiz, attempt, inputs)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if len(inputs) == 0 {
		universe = quiz.Questions
	}
	if err := s.rejectRecorded(ctx, attempt.ID, scored); err != nil {
		return domain.SubmissionResult{}, err
	}

	var result domain.SubmissionResult
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if len(scored) > 0 {
			if err := s.responses.InsertResponses(ctx, scored); err != nil {
				return err
			}
		}
		all, err := s.responses.ListResponses(ctx, attempt.ID)
		if err != nil {
			return fmt.Errorf("list responses: %w", err)
		}
		details := aggregate(all, universe)

		var finalized domain.QuizAttempt
		if kind == domain.SubmissionManual {
			finalized, err = s.lifecycle.Complete(ctx, attempt.ID, &details)
		} else {
			finalized, err = s.lifecycle.Timeout(ctx, attempt.ID, &details)
		}
		if err != nil {
			return err
		}

		result = domain.SubmissionResult{
			Attempt:          domain.NewAttemptView(finalized, quiz.AttemptsAllowed),
			TotalScore:       details.TotalScore,
			MaxPossibleScore: details.MaxPossibleScore,
			CorrectAnswers:   details.CorrectAnswers,
			TotalQuestions:   details.TotalQuestions,
			PercentageScore:  details.PercentageScore,
			SubmissionType:   kind,
			SubmittedAt:      s.opts.now(),
		}
		if len(scored) > 0 {
			result.Responses = scored
		}
		return nil
	})
	if err != nil {
		return domain.SubmissionResult{}, err
	}

	s.opts.log.Info("attempt submitted",
		zap.String("attemptId", attempt.ID),
		zap.String("submissionType", string(kind)),
		zap.Int("responses", len(scored)),
		zap.Int("correctAnswers", result.CorrectAnswers),
		zap.Int("totalQuestions", result.TotalQuestions),
		zap.String("totalScore", result.TotalScore.String()),
		zap.String("percentageScore", result.PercentageScore.String()))
	return result, nil
}

// SubmitOnTimeout is Submit labelled AUTO_TIMEOUT.
func (s *SubmissionService) SubmitOnTimeout(ctx context.Context, attemptID string, inputs []domain.ResponseInput) (domain.SubmissionResult, error) {
	return s.Submit(ctx, attemptID, inputs, domain.SubmissionAutoTimeout)
}

// RecordResponse scores and stores a single answer without finalizing the attempt.
func (s *SubmissionService) RecordResponse(ctx context.Context, attemptID string, input domain.ResponseInput) (domain.UserResponse, error) {
	if strings.TrimSpace(attemptID) == "" {
		return domain.UserResponse{}, domain.ErrAttemptIDRequired
	}
	attempt, quiz, err := s.openAttempt(ctx, attemptID)
	if err != nil {
		return domain.UserResponse{}, err
	}
	scored, _, err := s.scoreInputs(quiz, attempt, []domain.ResponseInput{input})
	if err != nil {
		return domain.UserResponse{}, err
	}
	if err := s.rejectRecorded(ctx, attempt.ID, scored); err != nil {
		return domain.UserResponse{}, err
	}
	if err := s.responses.InsertResponses(ctx, scored); err != nil {
		return domain.UserResponse{}, err
	}
	s.opts.log.Debug("response recorded",
		zap.String("attemptId", attempt.ID),
		zap.String("questionId", scored[0].QuestionID),
		zap.Bool("correct", scored[0].IsCorrect))
	return scored[0], nil
}

// ListResponses returns the responses stored for an attempt.
func (s *SubmissionService) ListResponses(ctx context.Context, attemptID string) ([]domain.UserResponse, error) {
	if _, err := s.attempts.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	return s.responses.ListResponses(ctx, attemptID)
}

func (s *SubmissionService) openAttempt(ctx context.Context, attemptID string) (domain.QuizAttempt, domain.Quiz, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.QuizAttempt{}, domain.Quiz{}, err
	}
	if attempt.Status != domain.AttemptInProgress {
		return domain.QuizAttempt{}, domain.Quiz{}, domain.InvalidState("status",
			"Quiz attempt is not in progress. Current status: %s", attempt.Status)
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.QuizAttempt{}, domain.Quiz{}, err
	}
	return attempt, quiz, nil
}

// scoreInputs parses and grades every input before anything is written. It returns the
// scored rows and the distinct questions they reference.
func (s *SubmissionService) scoreInputs(quiz domain.Quiz, attempt domain.QuizAttempt, inputs []domain.ResponseInput) ([]domain.UserResponse, []domain.QuizQuestion, error) {
	if len(inputs) == 0 {
		return nil, nil, nil
	}
	now := s.opts.now()
	seen := make(map[string]struct{}, len(inputs))
	scored := make([]domain.UserResponse, 0, len(inputs))
	universe := make([]domain.QuizQuestion, 0, len(inputs))
	for i, in := range inputs {
		question, ok := quiz.Question(in.QuestionID)
		if !ok {
			return nil, nil, domain.NotFound(fmt.Sprintf("responses[%d].questionId", i),
				"question %s not found in quiz %s", in.QuestionID, quiz.ID)
		}
		if _, dup := seen[question.ID]; dup {
			return nil, nil, domain.AlreadyExists(fmt.Sprintf("responses[%d].questionId", i),
				"duplicate response for question %s", question.ID)
		}
		seen[question.ID] = struct{}{}

		answer, err := domain.ParseAnswer(question.Type, in.Answer)
		if err != nil {
			return nil, nil, domain.InvalidAnswerFormat(fmt.Sprintf("responses[%d].answer", i), err)
		}
		correct, points := s.scorer.Score(question, answer)
		scored = append(scored, domain.UserResponse{
			ID:           s.opts.newID(),
			UserID:       attempt.UserID,
			QuizID:       attempt.QuizID,
			QuestionID:   question.ID,
			AttemptID:    attempt.ID,
			UserAnswer:   domain.EncodeAnswer(answer),
			IsCorrect:    correct,
			PointsEarned: points,
			AnsweredAt:   now,
		})
		universe = append(universe, question)
	}
	return scored, universe, nil
}

func (s *SubmissionService) rejectRecorded(ctx context.Context, attemptID string, scored []domain.UserResponse) error {
	if len(scored) == 0 {
		return nil
	}
	existing, err := s.responses.ListResponses(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("list responses: %w", err)
	}
	recorded := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		recorded[r.QuestionID] = struct{}{}
	}
	for i, r := range scored {
		if _, ok := recorded[r.QuestionID]; ok {
			return domain.AlreadyExists(fmt.Sprintf("responses[%d].questionId", i),
				"response for question %s already exists for this attempt", r.QuestionID)
		}
	}
	return nil
}

// aggregate sums earned points over responses and possible points over universe.
func aggregate(responses []domain.UserResponse, universe []domain.QuizQuestion) domain.ScoreDetails {
	total := decimal.Zero
	correct := 0
	for _, r := range responses {
		total = total.Add(r.PointsEarned)
		if r.IsCorrect {
			correct++
		}
	}
	possible := decimal.Zero
	for _, q := range universe {
		possible = possible.Add(q.Points)
	}
	percentage := decimal.Zero
	if possible.IsPositive() {
		percentage = total.Div(possible).Mul(hundred).Round(2)
	}
	return domain.ScoreDetails{
		TotalScore:       total,
		MaxPossibleScore: possible,
		PercentageScore:  percentage,
		CorrectAnswers:   correct,
		TotalQuestions:   len(universe),
	}
}
