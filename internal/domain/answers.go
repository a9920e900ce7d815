package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// QuestionType is the closed set of supported question kinds.
type QuestionType string

const (
	MCQSingle   QuestionType = "MCQ_SINGLE"
	MCQMultiple QuestionType = "MCQ_MULTIPLE"
	ShortAnswer QuestionType = "SHORT_ANSWER"
)

// ParseQuestionType maps the stored/wire name onto the closed set.
func ParseQuestionType(raw string) (QuestionType, error) {
	switch qt := QuestionType(strings.TrimSpace(raw)); qt {
	case MCQSingle, MCQMultiple, ShortAnswer:
		return qt, nil
	}
	return "", InvalidState("questionType", "unsupported question type %q", raw)
}

// IsChoice reports whether answers to this type are option sets.
func (t QuestionType) IsChoice() bool {
	return t == MCQSingle || t == MCQMultiple
}

// ChoiceSet is a sorted, de-duplicated set of option strings.
type ChoiceSet []string

func NewChoiceSet(items ...string) ChoiceSet {
	seen := make(map[string]struct{}, len(items))
	out := make(ChoiceSet, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// Equal is exact set equality.
func (s ChoiceSet) Equal(other ChoiceSet) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func (s ChoiceSet) Contains(item string) bool {
	i := sort.SearchStrings(s, item)
	return i < len(s) && s[i] == item
}

// Answer is a parsed user answer. Implementations: ChoiceAnswer, TextAnswer.
type Answer interface {
	isAnswer()
}

// ChoiceAnswer is the submitted option set for MCQ questions.
type ChoiceAnswer struct {
	Choices ChoiceSet
}

// TextAnswer is the submitted string for short-answer questions.
type TextAnswer struct {
	Text string
}

func (ChoiceAnswer) isAnswer() {}
func (TextAnswer) isAnswer()   {}

// AnswerKey is the parsed correct answer of a question. The set of implementations is
// closed (SingleChoiceKey, MultipleChoiceKey, ShortAnswerKey); consumers dispatch through
// KeyVisitor, so a new key kind fails to compile until every visitor handles it.
type AnswerKey interface {
	QuestionType() QuestionType
	Accept(v KeyVisitor) bool
	isAnswerKey()
}

// KeyVisitor receives the concrete answer key.
type KeyVisitor interface {
	VisitSingleChoice(k SingleChoiceKey) bool
	VisitMultipleChoice(k MultipleChoiceKey) bool
	VisitShortAnswer(k ShortAnswerKey) bool
}

type SingleChoiceKey struct {
	Choice string
}

type MultipleChoiceKey struct {
	Choices ChoiceSet
}

type ShortAnswerKey struct {
	Text string
}

func (SingleChoiceKey) QuestionType() QuestionType   { return MCQSingle }
func (MultipleChoiceKey) QuestionType() QuestionType { return MCQMultiple }
func (ShortAnswerKey) QuestionType() QuestionType    { return ShortAnswer }

func (k SingleChoiceKey) Accept(v KeyVisitor) bool   { return v.VisitSingleChoice(k) }
func (k MultipleChoiceKey) Accept(v KeyVisitor) bool { return v.VisitMultipleChoice(k) }
func (k ShortAnswerKey) Accept(v KeyVisitor) bool    { return v.VisitShortAnswer(k) }

func (SingleChoiceKey) isAnswerKey()   {}
func (MultipleChoiceKey) isAnswerKey() {}
func (ShortAnswerKey) isAnswerKey()    {}

var errEmptyPayload = errors.New("value is required")

// ParseAnswer parses a raw submitted value into the shape expected by qt.
// MCQ answers accept a string, an array of strings, or a string holding a JSON array;
// null means "nothing selected". Short answers must be a string (null is empty).
func ParseAnswer(qt QuestionType, raw json.RawMessage) (Answer, error) {
	if qt.IsChoice() {
		set, err := parseChoiceSet(raw)
		if err != nil {
			return nil, err
		}
		return ChoiceAnswer{Choices: set}, nil
	}
	if isNull(raw) {
		return TextAnswer{}, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("expected a string")
	}
	return TextAnswer{Text: text}, nil
}

// ParseAnswerKey parses and validates a question's correct answer against its options.
func ParseAnswerKey(qt QuestionType, raw json.RawMessage, options []string) (AnswerKey, error) {
	if isNull(raw) {
		return nil, errEmptyPayload
	}
	switch qt {
	case MCQSingle, MCQMultiple:
		set, err := parseChoiceSet(raw)
		if err != nil {
			return nil, err
		}
		for _, c := range set {
			if !containsString(options, c) {
				return nil, fmt.Errorf("%q is not one of the options", c)
			}
		}
		if qt == MCQSingle {
			if len(set) != 1 {
				return nil, fmt.Errorf("single choice questions need exactly one correct option, got %d", len(set))
			}
			return SingleChoiceKey{Choice: set[0]}, nil
		}
		if len(set) == 0 {
			return nil, fmt.Errorf("multiple choice questions need at least one correct option")
		}
		return MultipleChoiceKey{Choices: set}, nil
	case ShortAnswer:
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("expected a string")
		}
		if strings.TrimSpace(text) == "" {
			return nil, errEmptyPayload
		}
		return ShortAnswerKey{Text: text}, nil
	}
	return nil, fmt.Errorf("unsupported question type %q", qt)
}

// ValidateOptions checks the option list shape for qt.
func ValidateOptions(qt QuestionType, options []string) error {
	if !qt.IsChoice() {
		if len(options) > 0 {
			return InvalidState("options", "options are not allowed for %s questions", qt)
		}
		return nil
	}
	if len(options) < 2 {
		return InvalidState("options", "%s questions need at least 2 options", qt)
	}
	seen := make(map[string]struct{}, len(options))
	for i, o := range options {
		if strings.TrimSpace(o) == "" {
			return InvalidState(fmt.Sprintf("options[%d]", i), "option %d is empty", i+1)
		}
		if _, dup := seen[o]; dup {
			return InvalidState(fmt.Sprintf("options[%d]", i), "duplicate option %q", o)
		}
		seen[o] = struct{}{}
	}
	return nil
}

// EncodeAnswer renders an answer in its canonical storage form.
func EncodeAnswer(a Answer) json.RawMessage {
	var v any
	switch x := a.(type) {
	case ChoiceAnswer:
		choices := x.Choices
		if choices == nil {
			choices = ChoiceSet{}
		}
		v = choices
	case TextAnswer:
		v = x.Text
	}
	raw, _ := json.Marshal(v)
	return raw
}

type keyEncoder struct{ out any }

func (e *keyEncoder) VisitSingleChoice(k SingleChoiceKey) bool {
	e.out = []string{k.Choice}
	return true
}

func (e *keyEncoder) VisitMultipleChoice(k MultipleChoiceKey) bool {
	e.out = k.Choices
	return true
}

func (e *keyEncoder) VisitShortAnswer(k ShortAnswerKey) bool {
	e.out = k.Text
	return true
}

// EncodeAnswerKey renders a key using the same conventions as answers (sets as arrays).
func EncodeAnswerKey(k AnswerKey) json.RawMessage {
	if k == nil {
		return json.RawMessage("null")
	}
	enc := &keyEncoder{}
	k.Accept(enc)
	raw, _ := json.Marshal(enc.out)
	return raw
}

func parseChoiceSet(raw json.RawMessage) (ChoiceSet, error) {
	if isNull(raw) {
		return ChoiceSet{}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return NewChoiceSet(list...), nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("expected a string or an array of strings")
	}
	if trimmed := strings.TrimSpace(single); strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, fmt.Errorf("malformed option list")
		}
		return NewChoiceSet(list...), nil
	}
	if single == "" {
		return ChoiceSet{}, nil
	}
	return NewChoiceSet(single), nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func containsString(list []string, s string) bool {
	for _, it := range list {
		if it == s {
			return true
		}
	}
	return false
}
