package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/domain"
)

type txKey struct{}

// Store is an in-process implementation of the quiz loader and the attempt, response and
// question repositories. RunInTx gives all-or-nothing semantics by snapshotting state;
// writers outside a transaction wait for running transactions to finish.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	quizzes   map[string]domain.Quiz
	questions map[string]domain.QuizQuestion
	attempts  map[string]domain.QuizAttempt
	responses map[string][]domain.UserResponse // by attempt id
}

func NewStore() *Store {
	return &Store{
		quizzes:   make(map[string]domain.Quiz),
		questions: make(map[string]domain.QuizQuestion),
		attempts:  make(map[string]domain.QuizAttempt),
		responses: make(map[string][]domain.UserResponse),
	}
}

// PutQuiz stores the quiz definition and replaces its questions, positioned in slice order.
func (s *Store) PutQuiz(quiz domain.Quiz) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, q := range s.questions {
		if q.QuizID == quiz.ID {
			delete(s.questions, id)
		}
	}
	for i, q := range quiz.Questions {
		q.QuizID = quiz.ID
		q.Position = i + 1
		s.questions[q.ID] = q
	}
	quiz.Questions = nil
	s.quizzes[quiz.ID] = quiz
}

func (s *Store) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz.Questions = s.questionsOfLocked(quizID)
	return quiz, nil
}

// RunInTx runs fn atomically with respect to other writers. Nested calls join the outer one.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

func (s *Store) write(ctx context.Context, fn func() error) error {
	if !s.inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

type snapshot struct {
	quizzes   map[string]domain.Quiz
	questions map[string]domain.QuizQuestion
	attempts  map[string]domain.QuizAttempt
	responses map[string][]domain.UserResponse
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{
		quizzes:   make(map[string]domain.Quiz, len(s.quizzes)),
		questions: make(map[string]domain.QuizQuestion, len(s.questions)),
		attempts:  make(map[string]domain.QuizAttempt, len(s.attempts)),
		responses: make(map[string][]domain.UserResponse, len(s.responses)),
	}
	for k, v := range s.quizzes {
		snap.quizzes[k] = v
	}
	for k, v := range s.questions {
		snap.questions[k] = v
	}
	for k, v := range s.attempts {
		snap.attempts[k] = v
	}
	for k, v := range s.responses {
		snap.responses[k] = append([]domain.UserResponse(nil), v...)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes = snap.quizzes
	s.questions = snap.questions
	s.attempts = snap.attempts
	s.responses = snap.responses
}

// Attempts.

func (s *Store) GetAttempt(_ context.Context, attemptID string) (domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[attemptID]
	if !ok {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	return a, nil
}

func (s *Store) FindInProgress(_ context.Context, quizID, userID string) (domain.QuizAttempt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.UserID == userID && a.Status == domain.AttemptInProgress {
			return a, true, nil
		}
	}
	return domain.QuizAttempt{}, false, nil
}

func (s *Store) LatestNumber(_ context.Context, quizID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := 0
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.UserID == userID && a.Number > latest {
			latest = a.Number
		}
	}
	return latest, nil
}

func (s *Store) CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) error {
	return s.write(ctx, func() error {
		if _, ok := s.quizzes[attempt.QuizID]; !ok {
			return domain.ErrQuizNotFound
		}
		for _, a := range s.attempts {
			if a.QuizID != attempt.QuizID || a.UserID != attempt.UserID {
				continue
			}
			if a.Number == attempt.Number {
				return domain.ErrAttemptConflict
			}
			if a.Status == domain.AttemptInProgress && attempt.Status == domain.AttemptInProgress {
				return domain.ErrAttemptConflict
			}
		}
		if _, dup := s.attempts[attempt.ID]; dup {
			return domain.ErrAttemptConflict
		}
		attempt.Version = 1
		s.attempts[attempt.ID] = attempt
		return nil
	})
}

func (s *Store) FinalizeAttempt(ctx context.Context, attemptID string, from domain.AttemptStatus, fin domain.Finalization) (domain.QuizAttempt, error) {
	var updated domain.QuizAttempt
	err := s.write(ctx, func() error {
		a, ok := s.attempts[attemptID]
		if !ok {
			return domain.ErrAttemptNotFound
		}
		if a.Status != from {
			return domain.ErrStaleAttempt
		}
		finishedAt := fin.FinishedAt
		a.Status = fin.Status
		a.FinishedAt = &finishedAt
		if fin.ScoreDetails != nil {
			details := *fin.ScoreDetails
			a.ScoreDetails = &details
		}
		a.Version++
		s.attempts[attemptID] = a
		updated = a
		return nil
	})
	return updated, err
}

func (s *Store) ListAttempts(_ context.Context, quizID, userID string) ([]domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.QuizAttempt
	for _, a := range s.attempts {
		if a.QuizID == quizID && a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// Responses.

func (s *Store) InsertResponses(ctx context.Context, responses []domain.UserResponse) error {
	return s.write(ctx, func() error {
		batch := make(map[string]struct{}, len(responses))
		for _, r := range responses {
			if _, ok := s.attempts[r.AttemptID]; !ok {
				return domain.ErrAttemptNotFound
			}
			key := r.AttemptID + "/" + r.QuestionID
			if _, dup := batch[key]; dup {
				return duplicateResponse(r)
			}
			batch[key] = struct{}{}
			for _, existing := range s.responses[r.AttemptID] {
				if existing.QuestionID == r.QuestionID && existing.UserID == r.UserID && existing.QuizID == r.QuizID {
					return duplicateResponse(r)
				}
			}
		}
		for _, r := range responses {
			s.responses[r.AttemptID] = append(s.responses[r.AttemptID], r)
		}
		return nil
	})
}

func (s *Store) ListResponses(_ context.Context, attemptID string) ([]domain.UserResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.UserResponse(nil), s.responses[attemptID]...), nil
}

func duplicateResponse(r domain.UserResponse) error {
	return domain.AlreadyExists("questionId", "response for question %s already exists for this attempt", r.QuestionID)
}

// Questions.

func (s *Store) GetQuestion(_ context.Context, questionID string) (domain.QuizQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[questionID]
	if !ok {
		return domain.QuizQuestion{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (s *Store) ListQuestions(_ context.Context, quizID string) ([]domain.QuizQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.questionsOfLocked(quizID), nil
}

func (s *Store) AppendQuestion(ctx context.Context, q domain.QuizQuestion) (domain.QuizQuestion, error) {
	err := s.write(ctx, func() error {
		if _, ok := s.quizzes[q.QuizID]; !ok {
			return domain.ErrQuizNotFound
		}
		q.Position = len(s.questionsOfLocked(q.QuizID)) + 1
		s.questions[q.ID] = q
		return nil
	})
	return q, err
}

func (s *Store) MoveQuestion(ctx context.Context, questionID string, position int) (domain.QuizQuestion, error) {
	var moved domain.QuizQuestion
	err := s.write(ctx, func() error {
		current, ok := s.questions[questionID]
		if !ok {
			return domain.ErrQuestionNotFound
		}
		siblings := s.questionsOfLocked(current.QuizID)
		var err error
		moved, err = domain.MoveQuestion(siblings, questionID, position)
		if err != nil {
			return err
		}
		for _, q := range siblings {
			s.questions[q.ID] = q
		}
		return nil
	})
	return moved, err
}

func (s *Store) DeleteQuestion(ctx context.Context, questionID string) (domain.QuizQuestion, error) {
	var removed domain.QuizQuestion
	err := s.write(ctx, func() error {
		current, ok := s.questions[questionID]
		if !ok {
			return domain.ErrQuestionNotFound
		}
		remaining, gone, err := domain.RemoveQuestion(s.questionsOfLocked(current.QuizID), questionID)
		if err != nil {
			return err
		}
		delete(s.questions, questionID)
		for _, q := range remaining {
			s.questions[q.ID] = q
		}
		removed = gone
		return nil
	})
	return removed, err
}

func (s *Store) questionsOfLocked(quizID string) []domain.QuizQuestion {
	var out []domain.QuizQuestion
	for _, q := range s.questions {
		if q.QuizID == quizID {
			out = append(out, q)
		}
	}
	domain.SortByPosition(out)
	return out
}
