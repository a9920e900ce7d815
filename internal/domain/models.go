package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Quiz is the collaborator-owned quiz definition with its questions ordered by position.
type Quiz struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	AttemptsAllowed int            `json:"attemptsAllowed"`
	TimeLimit       time.Duration  `json:"timeLimit"` // zero means untimed
	Questions       []QuizQuestion `json:"questions"`
}

// Question looks up a question of this quiz by id.
func (q Quiz) Question(id string) (QuizQuestion, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return QuizQuestion{}, false
}

// QuizQuestion is a scorable question. Key is the parsed correct answer.
type QuizQuestion struct {
	ID       string
	QuizID   string
	Type     QuestionType
	Prompt   string
	Options  []string
	Key      AnswerKey
	Points   decimal.Decimal
	Position int
}

type questionJSON struct {
	ID            string          `json:"id"`
	QuizID        string          `json:"quizId"`
	QuestionType  QuestionType    `json:"questionType"`
	Prompt        string          `json:"prompt"`
	Options       []string        `json:"options,omitempty"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Points        decimal.Decimal `json:"points"`
	Position      int             `json:"position"`
}

func (q QuizQuestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(questionJSON{
		ID:            q.ID,
		QuizID:        q.QuizID,
		QuestionType:  q.Type,
		Prompt:        q.Prompt,
		Options:       q.Options,
		CorrectAnswer: EncodeAnswerKey(q.Key),
		Points:        q.Points,
		Position:      q.Position,
	})
}

func (q *QuizQuestion) UnmarshalJSON(data []byte) error {
	var wire questionJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	qt, err := ParseQuestionType(string(wire.QuestionType))
	if err != nil {
		return err
	}
	key, err := ParseAnswerKey(qt, wire.CorrectAnswer, wire.Options)
	if err != nil {
		return fmt.Errorf("question %s: %w", wire.ID, err)
	}
	*q = QuizQuestion{
		ID:       wire.ID,
		QuizID:   wire.QuizID,
		Type:     qt,
		Prompt:   wire.Prompt,
		Options:  wire.Options,
		Key:      key,
		Points:   wire.Points,
		Position: wire.Position,
	}
	return nil
}

// QuestionInput is an authoring request for a new question.
type QuestionInput struct {
	QuestionType  string          `json:"questionType" validate:"required"`
	Prompt        string          `json:"prompt"`
	Options       []string        `json:"options,omitempty"`
	CorrectAnswer json.RawMessage `json:"correctAnswer" validate:"required"`
	Points        decimal.Decimal `json:"points"`
}

// AttemptStatus is the attempt state machine's state.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptCompleted  AttemptStatus = "COMPLETED"
	AttemptAbandoned  AttemptStatus = "ABANDONED"
	AttemptTimedOut   AttemptStatus = "TIMED_OUT"
)

// Terminal reports whether the status is absorbing.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptAbandoned || s == AttemptTimedOut
}

// ParseAttemptStatus maps a wire name onto the closed set of statuses.
func ParseAttemptStatus(raw string) (AttemptStatus, error) {
	switch s := AttemptStatus(raw); s {
	case AttemptInProgress, AttemptCompleted, AttemptAbandoned, AttemptTimedOut:
		return s, nil
	}
	return "", InvalidState("status", "unknown attempt status %q", raw)
}

// ScoreDetails is the summary written at finalization.
type ScoreDetails struct {
	TotalScore       decimal.Decimal `json:"totalScore"`
	MaxPossibleScore decimal.Decimal `json:"maxPossibleScore"`
	PercentageScore  decimal.Decimal `json:"percentageScore"`
	CorrectAnswers   int             `json:"correctAnswers"`
	TotalQuestions   int             `json:"totalQuestions"`
}

// QuizAttempt is one numbered try by a user at a quiz.
type QuizAttempt struct {
	ID           string        `json:"id"`
	QuizID       string        `json:"quizId"`
	UserID       string        `json:"userId"`
	Number       int           `json:"attempt"`
	Status       AttemptStatus `json:"status"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   *time.Time    `json:"finishedAt"`
	ScoreDetails *ScoreDetails `json:"scoreDetails,omitempty"`
	Version      int           `json:"-"`
}

// Finalization is the write set applied when an attempt leaves IN_PROGRESS.
type Finalization struct {
	Status       AttemptStatus
	FinishedAt   time.Time
	ScoreDetails *ScoreDetails
}

// UserResponse is a scored answer; unique per (user, quiz, question, attempt).
type UserResponse struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	QuizID       string          `json:"quizId"`
	QuestionID   string          `json:"questionId"`
	AttemptID    string          `json:"attemptId"`
	UserAnswer   json.RawMessage `json:"userAnswer"`
	IsCorrect    bool            `json:"isCorrect"`
	PointsEarned decimal.Decimal `json:"pointsEarned"`
	AnsweredAt   time.Time       `json:"answeredAt"`
}

// ResponseInput is one submitted answer in its raw wire form.
type ResponseInput struct {
	QuestionID string          `json:"questionId" validate:"required"`
	Answer     json.RawMessage `json:"answer"`
}

// SubmissionType labels how a submission was triggered.
type SubmissionType string

const (
	SubmissionManual      SubmissionType = "MANUAL"
	SubmissionAutoTimeout SubmissionType = "AUTO_TIMEOUT"
)

// AttemptView is the attempt shape exposed to callers.
type AttemptView struct {
	AttemptID     string        `json:"attemptId"`
	QuizID        string        `json:"quizId"`
	UserID        string        `json:"userId"`
	AttemptNumber int           `json:"attemptNumber"`
	Status        AttemptStatus `json:"status"`
	StartedAt     time.Time     `json:"startedAt"`
	FinishedAt    *time.Time    `json:"finishedAt,omitempty"`
	AttemptsLeft  int           `json:"attemptsLeft"`
	ScoreDetails  *ScoreDetails `json:"scoreDetails,omitempty"`
}

// NewAttemptView counts the attempt's own number as used.
func NewAttemptView(a QuizAttempt, attemptsAllowed int) AttemptView {
	left := attemptsAllowed - a.Number
	if left < 0 {
		left = 0
	}
	return AttemptView{
		AttemptID:     a.ID,
		QuizID:        a.QuizID,
		UserID:        a.UserID,
		AttemptNumber: a.Number,
		Status:        a.Status,
		StartedAt:     a.StartedAt,
		FinishedAt:    a.FinishedAt,
		AttemptsLeft:  left,
		ScoreDetails:  a.ScoreDetails,
	}
}

// SubmissionResult summarizes a finalized submission.
type SubmissionResult struct {
	Attempt          AttemptView     `json:"attempt"`
	Responses        []UserResponse  `json:"responses"`
	TotalScore       decimal.Decimal `json:"totalScore"`
	MaxPossibleScore decimal.Decimal `json:"maxPossibleScore"`
	CorrectAnswers   int             `json:"correctAnswers"`
	TotalQuestions   int             `json:"totalQuestions"`
	PercentageScore  decimal.Decimal `json:"percentageScore"`
	SubmissionType   SubmissionType  `json:"submissionType"`
	SubmittedAt      time.Time       `json:"submittedAt"`
}
