package guardrail

import "fmt"

// PatternError reports a pattern that could not be compiled into a detector.
type PatternError struct {
	Detector string
	Pattern  string
	Err      error
}

func (e *PatternError) Error() string {
	if e.Pattern == "" {
		return fmt.Sprintf("detector %s: %v", e.Detector, e.Err)
	}
	return fmt.Sprintf("detector %s: pattern %s: %v", e.Detector, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// DetectorError reports a fault raised while a detector was evaluating.
// It is never folded into an Allow decision.
type DetectorError struct {
	Detector string
	Err      error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detector %s failed: %v", e.Detector, e.Err)
}

func (e *DetectorError) Unwrap() error {
	return e.Err
}
