package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klyr/promptguard/internal/logging"
)

func sampleDecisions() []logging.Decision {
	return []logging.Decision{
		{Timestamp: time.Unix(0, 0), Profile: "default", Action: "allow", DurationMS: 10, EvalMS: 0.1},
		{Timestamp: time.Unix(1, 0), Profile: "default", Action: "block", DurationMS: 30, EvalMS: 0.3, Detector: "pii", Category: "security/pii", Reason: "SSN detected in input"},
		{Timestamp: time.Unix(2, 0), Profile: "strict", Action: "shadow", DurationMS: 20, EvalMS: 0.2, Detector: "pii", Category: "security/pii"},
		{Timestamp: time.Unix(3, 0), Profile: "strict", Action: "block", DurationMS: 5, Detector: "prompt-injection", Category: "security/prompt-injection"},
		{Timestamp: time.Unix(4, 0), Profile: "default", Action: "error", DurationMS: 1, Error: "detector pii: boom"},
	}
}

func TestSummarize(t *testing.T) {
	summary := Summarize(sampleDecisions())
	if summary.Total != 5 {
		t.Fatalf("expected total 5, got %d", summary.Total)
	}
	if summary.Allowed != 1 || summary.Blocked != 2 || summary.Shadowed != 1 || summary.Errors != 1 {
		t.Fatalf("unexpected action counts: %+v", summary)
	}
	if len(summary.TopDetectors) != 2 || summary.TopDetectors[0] != (CountItem{Key: "pii", Count: 2}) {
		t.Fatalf("expected pii to lead detectors, got %+v", summary.TopDetectors)
	}
	if summary.TopCategories[1].Key != "security/prompt-injection" {
		t.Fatalf("unexpected categories %+v", summary.TopCategories)
	}
	if !summary.Start.Equal(time.Unix(0, 0)) || !summary.End.Equal(time.Unix(4, 0)) {
		t.Fatalf("unexpected window %v - %v", summary.Start, summary.End)
	}
	if summary.Latency.P50 != 10 || summary.Latency.P99 != 20 {
		t.Fatalf("unexpected latency %+v", summary.Latency)
	}
	if summary.EvalLatency.P50 != 0.1 {
		t.Fatalf("unexpected eval latency %+v", summary.EvalLatency)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary := Summarize(nil)
	if summary.Total != 0 || summary.TopDetectors != nil {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
	if !strings.Contains(RenderText(summary), "Top detectors: none") {
		t.Fatalf("expected none marker")
	}
}

func TestReaderFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewDecisionLogger(&buf)
	for _, d := range sampleDecisions() {
		if err := logger.Write(d); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	raw := buf.String()

	all, err := (&Reader{}).Read(strings.NewReader(raw + "\n\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 decisions, got %d", len(all))
	}

	since, err := (&Reader{Since: time.Unix(2, 0)}).Read(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(since) != 3 {
		t.Fatalf("expected 3 decisions since t=2, got %d", len(since))
	}

	strict, err := (&Reader{Profile: "strict"}).Read(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(strict) != 2 {
		t.Fatalf("expected 2 strict decisions, got %d", len(strict))
	}
}

func TestReaderReportsBadLine(t *testing.T) {
	_, err := (&Reader{}).Read(strings.NewReader("{}\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line 2 error, got %v", err)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	if err := os.WriteFile(path, []byte(`{"action":"allow","profile":"default"}`+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	decisions, err := (&Reader{}).ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Action != "allow" {
		t.Fatalf("unexpected decisions %+v", decisions)
	}
}

func TestRender(t *testing.T) {
	summary := Summarize(sampleDecisions())
	for _, format := range []string{"text", "md", "json"} {
		out, err := Render(summary, format)
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if !bytes.Contains(out, []byte("pii")) {
			t.Fatalf("%s: expected detector in output", format)
		}
	}
	if _, err := Render(summary, "xml"); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestWriteOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOutput(&buf, "", []byte("hi")); err != nil || buf.String() != "hi" {
		t.Fatalf("expected stdout write, got %q %v", buf.String(), err)
	}
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := WriteOutput(&buf, path, []byte("file")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "file" {
		t.Fatalf("unexpected file contents %q", data)
	}
}
