// Package builtin holds the pattern tables shipped with promptguard. The
// tables are data; every detector is an ordinary guardrail.PatternDetector.
package builtin

import (
	"fmt"

	"github.com/klyr/promptguard/internal/guardrail"
)

var registry = []struct {
	name string
	spec func() guardrail.DetectorSpec
}{
	{SecretExposure, SecretExposureSpec},
	{PII, PIISpec},
	{PromptInjection, PromptInjectionSpec},
}

// Names lists the built-in detectors in their default evaluation order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for _, entry := range registry {
		out = append(out, entry.name)
	}
	return out
}

// Spec returns a fresh copy of the named built-in table.
func Spec(name string) (guardrail.DetectorSpec, bool) {
	for _, entry := range registry {
		if entry.name == name {
			return entry.spec(), true
		}
	}
	return guardrail.DetectorSpec{}, false
}

func New(name string) (*guardrail.PatternDetector, error) {
	spec, ok := Spec(name)
	if !ok {
		return nil, fmt.Errorf("unknown builtin detector %q", name)
	}
	return guardrail.NewPatternDetector(spec)
}

// Default builds every built-in detector in default order.
func Default() ([]guardrail.Detector, error) {
	out := make([]guardrail.Detector, 0, len(registry))
	for _, entry := range registry {
		d, err := guardrail.NewPatternDetector(entry.spec())
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
