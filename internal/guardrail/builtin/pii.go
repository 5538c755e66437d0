package builtin

import "github.com/klyr/promptguard/internal/guardrail"

const (
	PII         = "pii"
	PIICategory = "security/pii"

	// A couple of phone numbers is ordinary; more than this is treated as a dump.
	phoneThreshold = 2
)

// Unicode-aware stand-ins for \d, \s and \w. RE2 limits the Perl classes to
// ASCII, which lets numbers written in other scripts or separated by
// no-break spaces slip through.
const (
	digit   = `\p{Nd}`
	space   = `\s\v\p{Z}\x{85}\x{1c}-\x{1f}`
	notWord = `[^\p{L}\p{N}_]`
)

// bounded requires a word boundary on both sides of core, where any letter,
// number or underscore counts as a word character. The boundary characters
// are context and stay outside the match group.
func bounded(core string) string {
	return `(?:^|` + notWord + `)(?P<` + guardrail.MatchGroup + `>` + core + `)(?:$|` + notWord + `)`
}

func PIISpec() guardrail.DetectorSpec {
	return guardrail.DetectorSpec{
		Name:     PII,
		Category: PIICategory,
		Patterns: []guardrail.PatternSpec{
			{
				Name:       "ssn",
				Expression: bounded(digit + `{3}-` + digit + `{2}-` + digit + `{4}`),
				Trigger:    guardrail.TriggerExistence,
				Reason:     "SSN detected in input",
			},
			{
				Name:       "credit_card",
				Expression: bounded(digit + `{4}[- ]?` + digit + `{4}[- ]?` + digit + `{4}[- ]?` + digit + `{4}`),
				Trigger:    guardrail.TriggerExistence,
				Reason:     "Credit card number detected in input",
			},
			{
				Name:       "phone",
				Expression: bounded(digit + `{3}[-.` + space + `]?` + digit + `{3}[-.` + space + `]?` + digit + `{4}`),
				Trigger:    guardrail.TriggerCount,
				Threshold:  phoneThreshold,
				Reason:     "Multiple phone numbers detected",
			},
		},
	}
}
