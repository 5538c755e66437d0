package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/klyr/promptguard/internal/guardrail"
	"github.com/klyr/promptguard/internal/logging"
	"github.com/klyr/promptguard/internal/policy"
)

const (
	healthPath   = "/healthz"
	evaluatePath = "/v1/guardrails/evaluate"
)

type evaluateRequest struct {
	Inputs      json.RawMessage `json:"inputs"`
	RequestData map[string]any  `json:"request_data"`
	InputType   string          `json:"input_type"`
}

// EvaluateResponse is the body returned by the evaluate API.
type EvaluateResponse struct {
	Action    string `json:"action"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason,omitempty"`
	Detector  string `json:"detector,omitempty"`
	Category  string `json:"category,omitempty"`
	RequestID string `json:"request_id"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Detector  string `json:"detector,omitempty"`
	Category  string `json:"category,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvaluate screens texts without forwarding anything. Missing or
// malformed texts are screened as an empty input.
func (g *Gateway) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	profile := g.profiles[g.apiProfile]
	start := time.Now()
	decision := logging.Decision{
		Timestamp: start.UTC(),
		RequestID: uuid.NewString(),
		ClientIP:  clientIP(r),
		Host:      r.Host,
		Method:    r.Method,
		Path:      r.URL.Path,
		Profile:   profile.Name,
		Mode:      profile.Mode,
	}
	w.Header().Set(requestIDHeader, decision.RequestID)

	body, status, err := readBody(w, r, profile.Limits.MaxBodyBytes)
	if err != nil {
		decision.Action = string(policy.ActionBlock)
		decision.Reason = err.Error()
		decision.StatusCode = status
		g.writeDecision(decision, start)
		writeError(w, status, "invalid_request", err.Error(), decision)
		return
	}

	var req evaluateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		decision.Action = string(policy.ActionError)
		decision.Error = "invalid json"
		decision.StatusCode = http.StatusBadRequest
		g.writeDecision(decision, start)
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be a JSON object", decision)
		return
	}

	in := guardrail.Input{
		Texts:       parseTexts(req.Inputs),
		RequestData: req.RequestData,
		InputType:   req.InputType,
	}
	if in.InputType == "" {
		in.InputType = profile.InputType
	}
	decision.InputType = in.InputType
	decision.Texts = len(in.Texts)
	decision.InputBytes = in.Size()

	outcome := g.screen(r.Context(), profile, in)
	outcome.apply(&decision)
	if outcome.status != 0 {
		g.writeDecision(decision, start)
		writeError(w, outcome.status, outcome.errorType(), outcome.message(), decision)
		return
	}

	decision.StatusCode = http.StatusOK
	g.writeDecision(decision, start)
	writeJSON(w, http.StatusOK, EvaluateResponse{
		Action:    decision.Action,
		Decision:  outcome.result.Decision.Verdict().String(),
		Reason:    decision.Reason,
		Detector:  decision.Detector,
		Category:  decision.Category,
		RequestID: decision.RequestID,
	})
}

func writeError(w http.ResponseWriter, status int, typ, message string, decision logging.Decision) {
	detail := errorDetail{Type: typ, Message: message, RequestID: decision.RequestID}
	if typ == "guardrail_blocked" {
		detail.Detector = decision.Detector
		detail.Category = decision.Category
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
