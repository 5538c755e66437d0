package telemetry

import (
	"context"
	"testing"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	if p.Enabled {
		t.Fatal("expected disabled provider")
	}

	_, span := p.Tracer().Start(context.Background(), "guardrail.evaluate")
	if span.SpanContext().IsValid() {
		t.Fatal("expected noop span")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
}

func TestUnknownProtocol(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, Endpoint: "localhost:4318", Protocol: "udp"})
	if err == nil {
		t.Fatal("expected protocol error")
	}
}

func TestHTTPProviderRecordsSpans(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: true, Endpoint: "127.0.0.1:4318", Protocol: "http", Service: "promptguard"})
	if err != nil {
		t.Fatalf("NewProvider error: %v", err)
	}
	if !p.Enabled {
		t.Fatal("expected enabled provider")
	}
	_, span := p.Tracer().Start(context.Background(), "guardrail.evaluate")
	if !span.SpanContext().IsValid() {
		t.Fatal("expected recording span")
	}
	span.End()
}
