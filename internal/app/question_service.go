package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
)

// QuestionService is the authoring side of a quiz's question set. Positions stay the dense
// sequence 1..N across appends, moves and deletes.
type QuestionService struct {
	questions QuestionRepository
	quizzes   QuizCatalog
	locker    Locker
	opts      options
}

func NewQuestionService(questions QuestionRepository, quizzes QuizCatalog, locker Locker, opts ...Option) *QuestionService {
	return &QuestionService{
		questions: questions,
		quizzes:   quizzes,
		locker:    locker,
		opts:      buildOptions(opts),
	}
}

// AppendQuestion validates the definition and stores it at the end of the quiz.
func (s *QuestionService) AppendQuestion(ctx context.Context, quizID string, in domain.QuestionInput) (domain.QuizQuestion, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.QuizQuestion{}, err
	}
	question, err := s.buildQuestion(quizID, in)
	if err != nil {
		return domain.QuizQuestion{}, err
	}

	unlock, err := s.locker.Lock(ctx, questionsLockKey(quizID))
	if err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("lock questions: %w", err)
	}
	defer unlock()

	created, err := s.questions.AppendQuestion(ctx, question)
	if err != nil {
		return domain.QuizQuestion{}, err
	}
	s.invalidate(ctx, quizID)
	s.opts.log.Info("question appended",
		zap.String("quizId", quizID),
		zap.String("questionId", created.ID),
		zap.Int("position", created.Position))
	return created, nil
}

// RepositionQuestion moves a question to position, sliding the siblings in between.
func (s *QuestionService) RepositionQuestion(ctx context.Context, questionID string, position int) (domain.QuizQuestion, error) {
	current, err := s.questions.GetQuestion(ctx, questionID)
	if err != nil {
		return domain.QuizQuestion{}, err
	}

	unlock, err := s.locker.Lock(ctx, questionsLockKey(current.QuizID))
	if err != nil {
		return domain.QuizQuestion{}, fmt.Errorf("lock questions: %w", err)
	}
	defer unlock()

	moved, err := s.questions.MoveQuestion(ctx, questionID, position)
	if err != nil {
		return domain.QuizQuestion{}, err
	}
	if moved.Position != current.Position {
		s.invalidate(ctx, current.QuizID)
	}
	s.opts.log.Info("question repositioned",
		zap.String("quizId", current.QuizID),
		zap.String("questionId", questionID),
		zap.Int("from", current.Position),
		zap.Int("to", moved.Position))
	return moved, nil
}

// DeleteQuestion removes a question and compacts the positions above it.
func (s *QuestionService) DeleteQuestion(ctx context.Context, questionID string) error {
	current, err := s.questions.GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}

	unlock, err := s.locker.Lock(ctx, questionsLockKey(current.QuizID))
	if err != nil {
		return fmt.Errorf("lock questions: %w", err)
	}
	defer unlock()

	removed, err := s.questions.DeleteQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	s.invalidate(ctx, removed.QuizID)
	s.opts.log.Info("question deleted",
		zap.String("quizId", removed.QuizID),
		zap.String("questionId", questionID),
		zap.Int("position", removed.Position))
	return nil
}

func (s *QuestionService) GetQuestion(ctx context.Context, questionID string) (domain.QuizQuestion, error) {
	return s.questions.GetQuestion(ctx, questionID)
}

// ListQuestions returns the quiz's questions ordered by position.
func (s *QuestionService) ListQuestions(ctx context.Context, quizID string) ([]domain.QuizQuestion, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	return s.questions.ListQuestions(ctx, quizID)
}

func (s *QuestionService) buildQuestion(quizID string, in domain.QuestionInput) (domain.QuizQuestion, error) {
	qt, err := domain.ParseQuestionType(in.QuestionType)
	if err != nil {
		return domain.QuizQuestion{}, err
	}
	if err := domain.ValidateOptions(qt, in.Options); err != nil {
		return domain.QuizQuestion{}, err
	}
	key, err := domain.ParseAnswerKey(qt, in.CorrectAnswer, in.Options)
	if err != nil {
		return domain.QuizQuestion{}, domain.InvalidAnswerFormat("correctAnswer", err)
	}
	if in.Points.IsNegative() {
		return domain.QuizQuestion{}, domain.InvalidState("points", "points must not be negative")
	}
	return domain.QuizQuestion{
		ID:      s.opts.newID(),
		QuizID:  quizID,
		Type:    qt,
		Prompt:  in.Prompt,
		Options: in.Options,
		Key:     key,
		Points:  in.Points,
	}, nil
}

// invalidate drops the cached quiz. The mutation is already committed, so a cache failure is
// logged rather than returned.
func (s *QuestionService) invalidate(ctx context.Context, quizID string) {
	if err := s.quizzes.Invalidate(ctx, quizID); err != nil {
		s.opts.log.Error("quiz cache invalidation failed", zap.String("quizId", quizID), zap.Error(err))
	}
}
