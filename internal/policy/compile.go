package policy

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/klyr/promptguard/internal/config"
	"github.com/klyr/promptguard/internal/guardrail"
	"github.com/klyr/promptguard/internal/guardrail/builtin"
	"go.opentelemetry.io/otel/trace"
)

const keywordsPatternName = "keywords"

// Profile is a compiled config.Profile.
type Profile struct {
	Name        string
	Mode        string
	InputType   string
	Evaluator   *guardrail.Evaluator
	Limits      config.Limits
	BlockStatus int
}

// Options carries process-wide collaborators handed to every evaluator.
type Options struct {
	Tracer trace.Tracer
	Logger *slog.Logger
}

// Build compiles every detector referenced by a profile exactly once and
// shares it between the profiles that list it.
func Build(cfg *config.Config, opts Options) (map[string]*Profile, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	detectors := map[string]guardrail.Detector{}
	profiles := make(map[string]*Profile, len(cfg.Profiles))
	for name, raw := range cfg.Profiles {
		ordered := make([]guardrail.Detector, 0, len(raw.Detectors))
		for _, ref := range raw.Detectors {
			d, ok := detectors[ref]
			if !ok {
				compiled, err := BuildDetector(cfg, ref)
				if err != nil {
					return nil, fmt.Errorf("profile %s: %w", name, err)
				}
				detectors[ref] = compiled
				d = compiled
			}
			ordered = append(ordered, d)
		}

		ev := guardrail.NewEvaluator(ordered...).WithLogger(opts.Logger)
		if opts.Tracer != nil {
			ev = ev.WithTracer(opts.Tracer)
		}

		profiles[name] = &Profile{
			Name:        name,
			Mode:        raw.Mode,
			InputType:   inputTypeOrDefault(raw.InputType),
			Evaluator:   ev,
			Limits:      raw.Limits,
			BlockStatus: raw.Actions.BlockStatusCode,
		}
	}

	return profiles, nil
}

// BuildDetector resolves name against declared detectors first, then the
// builtin tables.
func BuildDetector(cfg *config.Config, name string) (guardrail.Detector, error) {
	raw, ok := cfg.Detector(name)
	if !ok {
		d, err := builtin.New(name)
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	spec, err := detectorSpec(cfg, raw)
	if err != nil {
		return nil, fmt.Errorf("detector %s: %w", raw.Name, err)
	}
	d, err := guardrail.NewPatternDetector(spec)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func detectorSpec(cfg *config.Config, raw config.Detector) (guardrail.DetectorSpec, error) {
	spec := guardrail.DetectorSpec{Name: raw.Name}
	if raw.Builtin != "" {
		base, ok := builtin.Spec(raw.Builtin)
		if !ok {
			return guardrail.DetectorSpec{}, fmt.Errorf("unknown builtin %q", raw.Builtin)
		}
		spec = base
		spec.Name = raw.Name
	}

	if raw.Category != "" {
		spec.Category = raw.Category
	}
	if len(raw.InputTypes) > 0 {
		spec.InputTypes = append([]string(nil), raw.InputTypes...)
	}
	if len(raw.Transforms) > 0 {
		spec.Transforms = append([]string(nil), raw.Transforms...)
	}

	for _, p := range raw.Patterns {
		spec.Patterns = append(spec.Patterns, guardrail.PatternSpec{
			Name:       p.Name,
			Expression: p.Pattern,
			Trigger:    guardrail.Trigger(p.Trigger),
			Threshold:  p.Threshold,
			Reason:     p.Reason,
		})
	}

	if raw.KeywordsFile != "" {
		keywords, err := readKeywords(cfg.ResolvePath(raw.KeywordsFile))
		if err != nil {
			return guardrail.DetectorSpec{}, err
		}
		spec.Patterns = append(spec.Patterns, guardrail.PatternSpec{
			Name:     keywordsPatternName,
			Keywords: keywords,
			Trigger:  guardrail.TriggerExistence,
			Reason:   raw.Reason,
		})
	}

	return spec, nil
}

func readKeywords(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var keywords []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keywords, nil
}

func inputTypeOrDefault(typ string) string {
	if typ == "" {
		return guardrail.InputTypeRequest
	}
	return typ
}

// Timeout returns the profile timeout, falling back to fallback when unset.
func (p *Profile) Timeout(fallback time.Duration) time.Duration {
	if p.Limits.Timeout > 0 {
		return p.Limits.Timeout
	}
	return fallback
}
