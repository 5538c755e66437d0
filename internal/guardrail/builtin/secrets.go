package builtin

import "github.com/klyr/promptguard/internal/guardrail"

const (
	SecretExposure         = "secret-exposure"
	SecretExposureCategory = "security/secret-exposure"
)

var secretProviders = []struct {
	provider   string
	expression string
}{
	{"OpenAI", `sk-[a-zA-Z0-9]{48}`},
	{"Anthropic", `sk-ant-[a-zA-Z0-9-]{95}`},
	{"AWS", `AKIA[0-9A-Z]{16}`},
	{"GitHub", `gh[ps]_[a-zA-Z0-9]{36}`},
	{"Stripe", `sk_live_[a-zA-Z0-9]{24}`},
	// Case-insensitive "api key" spelled out as character classes; the
	// rest of the expression stays case-sensitive.
	{"Generic", `[a-zA-Z0-9_-]*[aA][pP][iI][_-]?[kK][eE][yY][a-zA-Z0-9_-]*=[a-zA-Z0-9_-]{20,}`},
}

// SecretExposureSpec flags provider token shapes and generic key=value secrets.
func SecretExposureSpec() guardrail.DetectorSpec {
	patterns := make([]guardrail.PatternSpec, 0, len(secretProviders))
	for _, p := range secretProviders {
		patterns = append(patterns, guardrail.PatternSpec{
			Name:       p.provider,
			Expression: p.expression,
			Trigger:    guardrail.TriggerExistence,
			Reason:     "Potential " + p.provider + " API key detected - do not share secrets with LLMs",
		})
	}
	return guardrail.DetectorSpec{
		Name:     SecretExposure,
		Category: SecretExposureCategory,
		Patterns: patterns,
	}
}
