package logging

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"
)

const maxReason = 256

// Decision is written as a single JSON object per evaluated request. It
// records which detector fired and why, never the inspected text.
type Decision struct {
	Timestamp  time.Time `json:"ts"`
	RequestID  string    `json:"request_id"`
	ClientIP   string    `json:"client_ip,omitempty"`
	Host       string    `json:"host,omitempty"`
	Method     string    `json:"method,omitempty"`
	Path       string    `json:"path,omitempty"`
	RouteID    string    `json:"route_id,omitempty"`
	Profile    string    `json:"profile"`
	Mode       string    `json:"mode"`
	InputType  string    `json:"input_type"`
	Texts      int       `json:"texts"`
	InputBytes int       `json:"input_bytes"`
	Action     string    `json:"action"`
	Detector   string    `json:"detector,omitempty"`
	Category   string    `json:"category,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	StatusCode int       `json:"status_code"`
	DurationMS int64     `json:"duration_ms"`
	EvalMS     float64   `json:"eval_ms"`
	UpstreamMS int64     `json:"upstream_ms,omitempty"`
}

type DecisionLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewDecisionLogger(w io.Writer) *DecisionLogger {
	return &DecisionLogger{w: w}
}

func OpenDecisionLog(path string) (*DecisionLogger, func() error, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return NewDecisionLogger(file), file.Close, nil
}

// Write appends one line. Concurrent handlers share the logger, so lines
// are serialized.
func (l *DecisionLogger) Write(decision Decision) error {
	decision.Reason = truncate(decision.Reason, maxReason)

	data, err := json.Marshal(decision)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(append(data, '\n'))
	return err
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
