package guardrail

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/klyr/promptguard/internal/normalize"
)

// Detector inspects one input for a single category of risk.
// Implementations must be safe for concurrent use.
type Detector interface {
	Name() string
	Category() string
	Evaluate(in Input) (Decision, error)
}

// DetectorSpec is the declarative form of a PatternDetector.
type DetectorSpec struct {
	Name       string
	Category   string
	InputTypes []string
	Transforms []string
	Patterns   []PatternSpec
}

// PatternDetector evaluates an ordered list of patterns against the corpus
// and blocks on the first pattern that fires.
type PatternDetector struct {
	name       string
	category   string
	inputTypes []string
	opts       normalize.Options
	patterns   []Pattern
}

// NewPatternDetector compiles spec. Any invalid pattern fails the whole
// detector; nothing is skipped.
func NewPatternDetector(spec DetectorSpec) (*PatternDetector, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, errors.New("detector name is required")
	}
	if strings.TrimSpace(spec.Category) == "" {
		return nil, &PatternError{Detector: spec.Name, Err: errors.New("category is required")}
	}
	if len(spec.Patterns) == 0 {
		return nil, &PatternError{Detector: spec.Name, Err: errors.New("at least one pattern is required")}
	}

	opts, err := normalize.ParseTransforms(spec.Transforms)
	if err != nil {
		return nil, &PatternError{Detector: spec.Name, Err: err}
	}

	seen := make(map[string]struct{}, len(spec.Patterns))
	patterns := make([]Pattern, 0, len(spec.Patterns))
	for i, raw := range spec.Patterns {
		if _, dup := seen[raw.Name]; dup {
			return nil, &PatternError{Detector: spec.Name, Pattern: raw.Name, Err: errors.New("duplicated pattern name")}
		}
		seen[raw.Name] = struct{}{}

		compiled, err := compilePattern(raw, opts.Lowercase)
		if err != nil {
			name := raw.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, &PatternError{Detector: spec.Name, Pattern: name, Err: err}
		}
		patterns = append(patterns, compiled)
	}

	return &PatternDetector{
		name:       spec.Name,
		category:   spec.Category,
		inputTypes: slices.Clone(spec.InputTypes),
		opts:       opts,
		patterns:   patterns,
	}, nil
}

func (d *PatternDetector) Name() string { return d.name }

func (d *PatternDetector) Category() string { return d.category }

func (d *PatternDetector) InputTypes() []string { return slices.Clone(d.inputTypes) }

func (d *PatternDetector) Patterns() []Pattern { return slices.Clone(d.patterns) }

// AppliesTo reports whether the detector inspects inputs of the given type.
// An empty type is treated as a request.
func (d *PatternDetector) AppliesTo(inputType string) bool {
	if len(d.inputTypes) == 0 {
		return true
	}
	if inputType == "" {
		inputType = InputTypeRequest
	}
	return slices.Contains(d.inputTypes, inputType)
}

func (d *PatternDetector) Evaluate(in Input) (Decision, error) {
	if !d.AppliesTo(in.InputType) {
		return Allow(), nil
	}

	text := in.Corpus()
	if !d.opts.IsZero() {
		text = normalize.Apply(text, d.opts).Normalized
	}

	for _, p := range d.patterns {
		if p.fires(text) {
			return Block(p.reason), nil
		}
	}
	return Allow(), nil
}
