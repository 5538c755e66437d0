package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDecisionLoggerWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDecisionLogger(&buf)

	decision := Decision{
		Timestamp: time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		RequestID: "req-1",
		Profile:   "default",
		Action:    "block",
		Detector:  "pii",
		Category:  "security/pii",
		Reason:    strings.Repeat("a", 400),
	}

	if err := logger.Write(decision); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var parsed Decision
	if err := json.Unmarshal([]byte(lines[0]), &parsed); err != nil {
		t.Fatalf("invalid json: %v", err)
	}

	if parsed.Detector != "pii" || parsed.Category != "security/pii" {
		t.Fatalf("unexpected provenance %+v", parsed)
	}
	if len(parsed.Reason) != maxReason {
		t.Fatalf("expected reason length %d, got %d", maxReason, len(parsed.Reason))
	}
}

func TestDecisionLoggerConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDecisionLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = logger.Write(Decision{RequestID: "r", Action: "allow"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 50 {
		t.Fatalf("expected 50 lines, got %d", len(lines))
	}
	for _, line := range lines {
		var d Decision
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			t.Fatalf("corrupt line %q: %v", line, err)
		}
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	reason := strings.Repeat("a", maxReason-1) + "é"
	got := truncate(reason, maxReason)
	if got != strings.Repeat("a", maxReason-1) {
		t.Fatalf("expected split rune to be dropped, got %q", got[len(got)-4:])
	}
	if truncate("short", maxReason) != "short" {
		t.Fatal("expected short reason untouched")
	}

	var buf bytes.Buffer
	if err := NewDecisionLogger(&buf).Write(Decision{Reason: strings.Repeat("é", maxReason)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var parsed Decision
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.ContainsRune(parsed.Reason, '\uFFFD') || len(parsed.Reason) != maxReason {
		t.Fatalf("expected %d bytes of whole runes, got %d", maxReason, len(parsed.Reason))
	}
}
