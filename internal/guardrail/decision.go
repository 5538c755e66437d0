package guardrail

// Verdict is the tag of a Decision.
type Verdict uint8

const (
	VerdictAllow Verdict = iota
	VerdictBlock
)

func (v Verdict) String() string {
	switch v {
	case VerdictBlock:
		return "block"
	default:
		return "allow"
	}
}

// Decision is the outcome of a detector or evaluator run. The zero value is
// Allow. Decisions are comparable with ==.
type Decision struct {
	verdict Verdict
	reason  string
}

func Allow() Decision {
	return Decision{verdict: VerdictAllow}
}

// Block returns a blocking decision. The reason names the category that
// fired and must never quote the inspected text.
func Block(reason string) Decision {
	return Decision{verdict: VerdictBlock, reason: reason}
}

func (d Decision) Verdict() Verdict { return d.verdict }

func (d Decision) Blocked() bool { return d.verdict == VerdictBlock }

func (d Decision) Reason() string { return d.reason }

func (d Decision) String() string {
	if d.verdict == VerdictBlock {
		return "block: " + d.reason
	}
	return "allow"
}
