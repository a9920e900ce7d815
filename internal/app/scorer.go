package app

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"quiz-attempt-service/internal/domain"
)

// ShortAnswerRule selects how SHORT_ANSWER strings are compared.
type ShortAnswerRule string

const (
	// RuleExact compares byte for byte.
	RuleExact ShortAnswerRule = "exact"
	// RuleTrim ignores leading and trailing whitespace.
	RuleTrim ShortAnswerRule = "trim"
	// RuleCaseFold trims and compares under Unicode case folding.
	RuleCaseFold ShortAnswerRule = "casefold"
	// RuleNormalized applies NFKC, case folding and collapses inner whitespace runs.
	RuleNormalized ShortAnswerRule = "normalized"
)

// ParseShortAnswerRule maps a config value; empty means RuleExact.
func ParseShortAnswerRule(raw string) (ShortAnswerRule, error) {
	switch r := ShortAnswerRule(strings.ToLower(strings.TrimSpace(raw))); r {
	case "":
		return RuleExact, nil
	case RuleExact, RuleTrim, RuleCaseFold, RuleNormalized:
		return r, nil
	}
	return "", fmt.Errorf("unknown short answer rule %q", raw)
}

// TextMatcher decides whether a submitted short answer equals the expected one.
type TextMatcher func(expected, given string) bool

// NewTextMatcher returns the comparison for rule. Unknown rules fall back to exact.
func NewTextMatcher(rule ShortAnswerRule) TextMatcher {
	switch rule {
	case RuleTrim:
		return func(expected, given string) bool {
			return strings.TrimSpace(expected) == strings.TrimSpace(given)
		}
	case RuleCaseFold:
		return func(expected, given string) bool {
			fold := cases.Fold()
			return fold.String(strings.TrimSpace(expected)) == fold.String(strings.TrimSpace(given))
		}
	case RuleNormalized:
		return func(expected, given string) bool {
			return normalizeText(expected) == normalizeText(given)
		}
	default:
		return func(expected, given string) bool { return expected == given }
	}
}

func normalizeText(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// Scorer is the pure answer scorer. It never mutates questions or responses and is safe
// for concurrent use.
type Scorer struct {
	match TextMatcher
}

func NewScorer(rule ShortAnswerRule) *Scorer {
	return &Scorer{match: NewTextMatcher(rule)}
}

// Score grades a parsed answer against question. Scoring is binary: full points or zero.
func (s *Scorer) Score(question domain.QuizQuestion, answer domain.Answer) (bool, decimal.Decimal) {
	if question.Key == nil || answer == nil {
		return false, decimal.Zero
	}
	correct := question.Key.Accept(&grader{answer: answer, match: s.match})
	if !correct {
		return false, decimal.Zero
	}
	return true, question.Points
}

// grader compares one answer against whichever key kind it is handed.
type grader struct {
	answer domain.Answer
	match  TextMatcher
}

func (g *grader) VisitSingleChoice(k domain.SingleChoiceKey) bool {
	submitted, ok := g.answer.(domain.ChoiceAnswer)
	if !ok {
		return false
	}
	return submitted.Choices.Equal(domain.ChoiceSet{k.Choice})
}

func (g *grader) VisitMultipleChoice(k domain.MultipleChoiceKey) bool {
	submitted, ok := g.answer.(domain.ChoiceAnswer)
	if !ok {
		return false
	}
	return submitted.Choices.Equal(k.Choices)
}

func (g *grader) VisitShortAnswer(k domain.ShortAnswerKey) bool {
	submitted, ok := g.answer.(domain.TextAnswer)
	if !ok {
		return false
	}
	return g.match(k.Text, submitted.Text)
}
