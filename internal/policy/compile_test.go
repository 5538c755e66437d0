package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klyr/promptguard/internal/config"
	"github.com/klyr/promptguard/internal/guardrail"
	"github.com/klyr/promptguard/internal/guardrail/builtin"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "codenames.txt"), []byte("# codenames\nProject Falcon\n\nORION\n"), 0o600); err != nil {
		t.Fatalf("write keywords: %v", err)
	}

	cfg, err := config.Parse([]byte(`
configVersion: 1
profiles:
  strict:
    mode: enforce
    detectors: [secret-exposure, strict-pii, codenames]
  loose:
    mode: shadow
    inputType: response
    detectors: [prompt-injection, secret-exposure]
detectors:
  - name: strict-pii
    builtin: pii
    patterns:
      - {name: email, pattern: '[a-z]+@example\.com', reason: Email address detected}
  - name: codenames
    category: policy/internal
    transforms: [lowercase]
    keywordsFile: codenames.txt
    reason: Internal codename detected
`), dir)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return cfg
}

func TestBuildProfiles(t *testing.T) {
	profiles, err := Build(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	strict := profiles["strict"]
	if strict == nil || strict.InputType != guardrail.InputTypeRequest {
		t.Fatalf("unexpected strict profile %+v", strict)
	}

	names := []string{}
	for _, d := range strict.Evaluator.Detectors() {
		names = append(names, d.Name())
	}
	if strings.Join(names, ",") != "secret-exposure,strict-pii,codenames" {
		t.Fatalf("unexpected detector order %v", names)
	}

	loose := profiles["loose"]
	if loose.Mode != config.ModeShadow || loose.InputType != guardrail.InputTypeResponse {
		t.Fatalf("unexpected loose profile %+v", loose)
	}

	if strict.Evaluator.Detectors()[0] != loose.Evaluator.Detectors()[1] {
		t.Fatal("expected detector instances to be shared between profiles")
	}
}

func TestBuiltinExtendedWithPatterns(t *testing.T) {
	profiles, err := Build(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	ev := profiles["strict"].Evaluator

	cases := map[string]string{
		"SSN: 123-45-6789":         "SSN detected in input",
		"mail bob@example.com now": "Email address detected",
		"about PROJECT FALCON":     "Internal codename detected",
	}
	for text, reason := range cases {
		result, err := ev.Evaluate(context.Background(), guardrail.Input{Texts: []string{text}})
		if err != nil {
			t.Fatalf("Evaluate error: %v", err)
		}
		if result.Decision != guardrail.Block(reason) {
			t.Fatalf("%q: expected block %q, got %s", text, reason, result.Decision)
		}
	}

	result, err := ev.Evaluate(context.Background(), guardrail.Input{Texts: []string{"hello"}})
	if err != nil || result.Decision.Blocked() {
		t.Fatalf("expected allow, got %s (%v)", result.Decision, err)
	}
}

func TestBuildDetectorInheritsBuiltinCategory(t *testing.T) {
	d, err := BuildDetector(testConfig(t), "strict-pii")
	if err != nil {
		t.Fatalf("BuildDetector error: %v", err)
	}
	if d.Category() != builtin.PIICategory {
		t.Fatalf("expected %s, got %s", builtin.PIICategory, d.Category())
	}
}

func TestBuildFailsOnBadPattern(t *testing.T) {
	cfg := &config.Config{
		Profiles: map[string]config.Profile{"p": {Detectors: []string{"bad"}}},
		Detectors: []config.Detector{{
			Name:     "bad",
			Category: "test/bad",
			Patterns: []config.Pattern{{Name: "open", Pattern: "(", Reason: "r"}},
		}},
	}
	if _, err := Build(cfg, Options{}); err == nil {
		t.Fatal("expected construction failure")
	}
}

func TestBuildFailsOnUnknownDetector(t *testing.T) {
	cfg := &config.Config{Profiles: map[string]config.Profile{"p": {Detectors: []string{"toxicity"}}}}
	if _, err := Build(cfg, Options{}); err == nil {
		t.Fatal("expected unknown detector error")
	}
}

func TestBuildShippedConfig(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "promptguard.yaml"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	profiles, err := Build(cfg, Options{})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	res, err := profiles["default"].Evaluator.Evaluate(context.Background(), guardrail.Input{
		Texts:     []string{"status update on PROJECT BLUEBIRD"},
		InputType: guardrail.InputTypeRequest,
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Detector != "internal-words" || res.Decision.Reason() != "Internal codename detected" {
		t.Fatalf("expected internal-words block, got %+v", res)
	}

	res, err = profiles["audit"].Evaluator.Evaluate(context.Background(), guardrail.Input{
		Texts: []string{"TICKET-1 TICKET-2 TICKET-3 TICKET-4"},
	})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Detector != "tickets" {
		t.Fatalf("expected tickets block, got %+v", res)
	}
}
