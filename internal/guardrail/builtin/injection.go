package builtin

import (
	"github.com/klyr/promptguard/internal/guardrail"
	"github.com/klyr/promptguard/internal/normalize"
)

const (
	PromptInjection         = "prompt-injection"
	PromptInjectionCategory = "security/prompt-injection"
)

// Expressions are lowercase; the corpus is lowercased before matching.
var injectionExpressions = []string{
	`ignore (all |previous |above )?instructions`,
	`disregard (all |previous |above )?instructions`,
	`forget (all |previous |above )?instructions`,
	`you are now`,
	`new persona`,
	`act as if`,
	`pretend (that )?you`,
	`jailbreak`,
	`dan mode`,
	`developer mode`,
}

func PromptInjectionSpec() guardrail.DetectorSpec {
	patterns := make([]guardrail.PatternSpec, 0, len(injectionExpressions))
	for _, expr := range injectionExpressions {
		patterns = append(patterns, guardrail.PatternSpec{
			Name:       expr,
			Expression: expr,
			Trigger:    guardrail.TriggerExistence,
			Reason:     "Potential prompt injection detected: " + expr,
		})
	}
	return guardrail.DetectorSpec{
		Name:       PromptInjection,
		Category:   PromptInjectionCategory,
		Transforms: []string{string(normalize.TransformLowercase)},
		Patterns:   patterns,
	}
}
