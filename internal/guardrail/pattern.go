package guardrail

import (
	"errors"
	"fmt"
	"strings"
)

// Trigger selects how a pattern turns matches into a block.
type Trigger string

const (
	// TriggerExistence blocks on the first occurrence.
	TriggerExistence Trigger = "existence"
	// TriggerCount enumerates every non-overlapping occurrence and blocks
	// only when the count is strictly greater than the threshold.
	TriggerCount Trigger = "count"
)

// Matcher tests a corpus for occurrences of one pattern.
type Matcher interface {
	Match(input string) bool
	Count(input string) int
}

// PatternSpec is the declarative form of a pattern. Exactly one of
// Expression or Keywords is set.
type PatternSpec struct {
	Name       string   `json:"name" yaml:"name"`
	Expression string   `json:"expression,omitempty" yaml:"expression,omitempty"`
	Keywords   []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Trigger    Trigger  `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Threshold  int      `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Reason     string   `json:"reason" yaml:"reason"`
}

// Pattern is a compiled PatternSpec. It is immutable once built.
type Pattern struct {
	name      string
	trigger   Trigger
	threshold int
	reason    string
	matcher   Matcher
}

func (p Pattern) Name() string { return p.name }
func (p Pattern) Trigger() Trigger { return p.trigger }
func (p Pattern) Threshold() int { return p.threshold }
func (p Pattern) Reason() string { return p.reason }
func (p Pattern) Matcher() Matcher { return p.matcher }

func (p Pattern) fires(text string) bool {
	if p.trigger == TriggerCount {
		return p.matcher.Count(text) > p.threshold
	}
	return p.matcher.Match(text)
}

func compilePattern(spec PatternSpec, lowercase bool) (Pattern, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return Pattern{}, errors.New("name is required")
	}
	if strings.TrimSpace(spec.Reason) == "" {
		return Pattern{}, errors.New("reason is required")
	}

	trigger := spec.Trigger
	if trigger == "" {
		trigger = TriggerExistence
	}
	switch trigger {
	case TriggerExistence:
		if spec.Threshold != 0 {
			return Pattern{}, errors.New("threshold only applies to count triggers")
		}
	case TriggerCount:
		if spec.Threshold <= 0 {
			return Pattern{}, fmt.Errorf("count trigger needs a threshold > 0, got %d", spec.Threshold)
		}
	default:
		return Pattern{}, fmt.Errorf("unknown trigger %q", spec.Trigger)
	}

	var (
		matcher Matcher
		err     error
	)
	switch {
	case spec.Expression != "" && len(spec.Keywords) > 0:
		return Pattern{}, errors.New("expression and keywords are mutually exclusive")
	case spec.Expression != "":
		matcher, err = NewRegexMatcher(spec.Expression)
	case len(spec.Keywords) > 0:
		matcher, err = NewKeywordMatcher(keywordsFor(spec.Keywords, lowercase))
	default:
		return Pattern{}, errors.New("expression or keywords is required")
	}
	if err != nil {
		return Pattern{}, err
	}

	return Pattern{
		name:      spec.Name,
		trigger:   trigger,
		threshold: spec.Threshold,
		reason:    spec.Reason,
		matcher:   matcher,
	}, nil
}

// keywordsFor lowercases literal keywords when the corpus is lowercased,
// so keyword lists can be written in any case.
func keywordsFor(keywords []string, lowercase bool) []string {
	if !lowercase {
		return keywords
	}
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		out = append(out, strings.ToLower(k))
	}
	return out
}
