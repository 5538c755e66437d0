package policy

import (
	"github.com/klyr/promptguard/internal/config"
	"github.com/klyr/promptguard/internal/guardrail"
)

type Action string

const (
	ActionAllow  Action = "allow"
	ActionBlock  Action = "block"
	ActionShadow Action = "shadow"
	ActionError  Action = "error"
)

// DecideAction maps a guardrail decision onto the action taken for a
// profile mode. The bool reports whether the request must be rejected.
func DecideAction(mode string, decision guardrail.Decision) (Action, bool) {
	if !decision.Blocked() {
		return ActionAllow, false
	}

	switch mode {
	case config.ModeShadow:
		return ActionShadow, false
	default:
		return ActionBlock, true
	}
}
