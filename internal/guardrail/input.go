package guardrail

import "strings"

const (
	InputTypeRequest  = "request"
	InputTypeResponse = "response"
)

// Input is one unit of inspection. RequestData and InputType are carried
// through for detectors that need them; pattern detectors only read Texts
// and use InputType for scoping.
type Input struct {
	Texts       []string       `json:"texts"`
	RequestData map[string]any `json:"request_data,omitempty"`
	InputType   string         `json:"input_type,omitempty"`
}

// Corpus joins the fragments with a single space, preserving order.
func (in Input) Corpus() string {
	return strings.Join(in.Texts, " ")
}

// Size is the byte length of the corpus.
func (in Input) Size() int {
	if len(in.Texts) == 0 {
		return 0
	}
	n := len(in.Texts) - 1
	for _, text := range in.Texts {
		n += len(text)
	}
	return n
}
