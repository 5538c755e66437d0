package guardrail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errEmptyReason = errors.New("block decision without a reason")

// Result is the aggregated outcome of an Evaluator run. Detector and
// Category are empty unless the decision is a block.
type Result struct {
	Decision Decision
	Detector string
	Category string
}

// Evaluator runs detectors in order and stops at the first block.
// Detectors are shared references; the evaluator holds no per-call state.
type Evaluator struct {
	detectors []Detector
	tracer    trace.Tracer
	logger    *slog.Logger
}

func NewEvaluator(detectors ...Detector) *Evaluator {
	return &Evaluator{
		detectors: append([]Detector(nil), detectors...),
		logger:    slog.Default(),
	}
}

// WithTracer records one span per detector invocation.
func (e *Evaluator) WithTracer(tracer trace.Tracer) *Evaluator {
	e.tracer = tracer
	return e
}

func (e *Evaluator) WithLogger(logger *slog.Logger) *Evaluator {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Detectors returns the configured detectors in evaluation order.
func (e *Evaluator) Detectors() []Detector {
	out := make([]Detector, len(e.detectors))
	copy(out, e.detectors)
	return out
}

// Evaluate runs every detector in order. The first Block ends the run and
// later detectors are not invoked. A detector fault is returned as a
// *DetectorError and never reported as Allow.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) (Result, error) {
	for _, detector := range e.detectors {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		decision, err := e.run(ctx, detector, in)
		if err != nil {
			return Result{}, err
		}
		if decision.Blocked() {
			e.logger.DebugContext(ctx, "guardrail blocked input",
				"detector", detector.Name(),
				"category", detector.Category(),
				"reason", decision.Reason(),
			)
			return Result{
				Decision: decision,
				Detector: detector.Name(),
				Category: detector.Category(),
			}, nil
		}
	}

	return Result{Decision: Allow()}, nil
}

func (e *Evaluator) run(ctx context.Context, detector Detector, in Input) (decision Decision, err error) {
	var span trace.Span
	if e.tracer != nil {
		_, span = e.tracer.Start(ctx, "guardrail.evaluate",
			trace.WithAttributes(
				attribute.String("guardrail.name", detector.Name()),
				attribute.String("guardrail.category", detector.Category()),
				attribute.String("guardrail.input_type", in.InputType),
			),
		)
	}

	defer func() {
		if r := recover(); r != nil {
			decision = Decision{}
			err = &DetectorError{Detector: detector.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
		if span == nil {
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("guardrail.action", decision.Verdict().String()))
			if decision.Blocked() {
				span.SetAttributes(attribute.String("guardrail.reason", decision.Reason()))
			}
		}
		span.End()
	}()

	decision, err = detector.Evaluate(in)
	if err != nil {
		var derr *DetectorError
		if !errors.As(err, &derr) {
			err = &DetectorError{Detector: detector.Name(), Err: err}
		}
		return Decision{}, err
	}
	if decision.Blocked() && decision.Reason() == "" {
		return Decision{}, &DetectorError{Detector: detector.Name(), Err: errEmptyReason}
	}
	return decision, nil
}
