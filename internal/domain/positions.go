package domain

import (
	"fmt"
	"sort"
)

// PositionShift is the closed interval of sibling positions that slide by Delta when one
// question moves. Siblings move one slot toward the vacated position.
type PositionShift struct {
	From  int
	To    int
	Delta int
}

// Covers reports whether position lies in the shifted interval.
func (s PositionShift) Covers(position int) bool {
	return position >= s.From && position <= s.To
}

// PlanMove computes the sibling shift for moving a question from current to target in a
// quiz holding count questions. moved is false when target equals current.
func PlanMove(current, target, count int) (shift PositionShift, moved bool, err error) {
	if target == current {
		return PositionShift{}, false, nil
	}
	if target < 1 || target > count {
		return PositionShift{}, false, InvalidState("position", "Position must be between 1 and %d", count)
	}
	if target < current {
		return PositionShift{From: target, To: current - 1, Delta: 1}, true, nil
	}
	return PositionShift{From: current + 1, To: target, Delta: -1}, true, nil
}

// MoveQuestion applies PlanMove to questions in place and returns the moved question.
func MoveQuestion(questions []QuizQuestion, id string, target int) (QuizQuestion, error) {
	idx := indexOfQuestion(questions, id)
	if idx < 0 {
		return QuizQuestion{}, ErrQuestionNotFound
	}
	shift, moved, err := PlanMove(questions[idx].Position, target, len(questions))
	if err != nil || !moved {
		return questions[idx], err
	}
	for i := range questions {
		if i != idx && shift.Covers(questions[i].Position) {
			questions[i].Position += shift.Delta
		}
	}
	questions[idx].Position = target
	return questions[idx], nil
}

// RemoveQuestion deletes id and closes the gap it leaves, keeping positions dense.
func RemoveQuestion(questions []QuizQuestion, id string) ([]QuizQuestion, QuizQuestion, error) {
	idx := indexOfQuestion(questions, id)
	if idx < 0 {
		return questions, QuizQuestion{}, ErrQuestionNotFound
	}
	removed := questions[idx]
	out := make([]QuizQuestion, 0, len(questions)-1)
	for i, q := range questions {
		if i == idx {
			continue
		}
		if q.Position > removed.Position {
			q.Position--
		}
		out = append(out, q)
	}
	return out, removed, nil
}

// SortByPosition orders questions ascending by position.
func SortByPosition(questions []QuizQuestion) {
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Position < questions[j].Position
	})
}

// CheckDense verifies positions form exactly {1..N}.
func CheckDense(questions []QuizQuestion) error {
	seen := make([]bool, len(questions)+1)
	for _, q := range questions {
		if q.Position < 1 || q.Position > len(questions) {
			return fmt.Errorf("question %s has position %d outside 1..%d", q.ID, q.Position, len(questions))
		}
		if seen[q.Position] {
			return fmt.Errorf("position %d is used twice", q.Position)
		}
		seen[q.Position] = true
	}
	return nil
}

func indexOfQuestion(questions []QuizQuestion, id string) int {
	for i := range questions {
		if questions[i].ID == id {
			return i
		}
	}
	return -1
}
