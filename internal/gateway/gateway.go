package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/klyr/promptguard/internal/config"
	"github.com/klyr/promptguard/internal/guardrail"
	"github.com/klyr/promptguard/internal/logging"
	"github.com/klyr/promptguard/internal/observability"
	"github.com/klyr/promptguard/internal/policy"
	"go.opentelemetry.io/otel/trace"
)

const (
	requestIDHeader = "X-Request-Id"
	actionHeader    = "X-Promptguard-Action"
	defaultTimeout  = 30 * time.Second
)

// Gateway screens LLM requests with a profile's detectors and forwards the
// ones that pass to the route's upstream.
type Gateway struct {
	router     *Router
	profiles   map[string]*policy.Profile
	proxies    map[string]*httputil.ReverseProxy
	apiProfile string

	decisionLog *logging.DecisionLogger
	metrics     *observability.Metrics
	logger      *slog.Logger
}

type Options struct {
	Tracer trace.Tracer
	Logger *slog.Logger
}

func New(cfg *config.Config, opts Options) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}

	profiles, err := policy.Build(cfg, policy.Options{Tracer: opts.Tracer, Logger: logger})
	if err != nil {
		return nil, err
	}

	transport := newTransport(maxProfileTimeout(profiles))
	proxies := make(map[string]*httputil.ReverseProxy, len(cfg.Upstreams))
	for _, upstream := range cfg.Upstreams {
		target, err := url.Parse(upstream.URL)
		if err != nil {
			return nil, fmt.Errorf("parse upstream %s: %w", upstream.Name, err)
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.Transport = transport
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			switch {
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
			default:
				logger.Warn("upstream error", "upstream", target.Host, "error", err)
				http.Error(w, "upstream error", http.StatusBadGateway)
			}
		}
		proxies[upstream.Name] = proxy
	}

	if cfg.Server.APIProfile != "" {
		if _, ok := profiles[cfg.Server.APIProfile]; !ok {
			return nil, fmt.Errorf("api profile %q not found", cfg.Server.APIProfile)
		}
	}

	return &Gateway{
		router:     router,
		profiles:   profiles,
		proxies:    proxies,
		apiProfile: cfg.Server.APIProfile,
		logger:     logger,
	}, nil
}

func (g *Gateway) SetDecisionLogger(logger *logging.DecisionLogger) {
	g.decisionLog = logger
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	g.metrics = metrics
}

// Handler serves the health check, the evaluate API when an API profile is
// configured, and proxies everything else.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(healthPath, g.handleHealth)
	if g.apiProfile != "" {
		mux.HandleFunc(evaluatePath, g.handleEvaluate)
	}
	mux.Handle("/", g)
	return mux
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, profile, proxy, ok := g.resolveRoute(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	start := time.Now()
	decision := logging.Decision{
		Timestamp: start.UTC(),
		RequestID: uuid.NewString(),
		ClientIP:  clientIP(r),
		Host:      r.Host,
		Method:    r.Method,
		Path:      r.URL.Path,
		RouteID:   route.ID,
		Profile:   profile.Name,
		Mode:      profile.Mode,
		InputType: profile.InputType,
	}
	w.Header().Set(requestIDHeader, decision.RequestID)

	body, status, err := readBody(w, r, profile.Limits.MaxBodyBytes)
	if err != nil {
		decision.Action = string(policy.ActionBlock)
		decision.Reason = err.Error()
		decision.StatusCode = status
		g.writeDecision(decision, start)
		http.Error(w, err.Error(), status)
		return
	}

	in := guardrail.Input{Texts: ExtractTexts(body), InputType: profile.InputType}
	decision.Texts = len(in.Texts)
	decision.InputBytes = in.Size()
	outcome := g.screen(r.Context(), profile, in)
	outcome.apply(&decision)

	switch {
	case outcome.status != 0:
		g.writeDecision(decision, start)
		writeError(w, outcome.status, outcome.errorType(), outcome.message(), decision)
		return
	case outcome.block:
		decision.StatusCode = profile.BlockStatus
		if decision.StatusCode == 0 {
			decision.StatusCode = http.StatusForbidden
		}
		g.writeDecision(decision, start)
		writeError(w, decision.StatusCode, "guardrail_blocked", decision.Reason, decision)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.Header.Set(requestIDHeader, decision.RequestID)
	if outcome.action == policy.ActionShadow {
		w.Header().Set(actionHeader, string(policy.ActionShadow))
	}

	upstreamStart := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	proxy.ServeHTTP(rec, r)
	decision.StatusCode = rec.status
	decision.UpstreamMS = time.Since(upstreamStart).Milliseconds()
	g.writeDecision(decision, start)
}

// outcome is the result of screening one input against a profile.
type outcome struct {
	result guardrail.Result
	action policy.Action
	block  bool
	err    error
	evalMS float64
	// status is set when screening itself rejects the request.
	status int
}

func (g *Gateway) screen(ctx context.Context, profile *policy.Profile, in guardrail.Input) outcome {
	if max := profile.Limits.MaxInputBytes; max > 0 && int64(in.Size()) > max {
		return outcome{
			action: policy.ActionBlock,
			block:  true,
			err:    errInputTooLarge,
			status: http.StatusRequestEntityTooLarge,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, profile.Timeout(defaultTimeout))
	defer cancel()

	start := time.Now()
	result, err := profile.Evaluator.Evaluate(ctx, in)
	evalMS := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		g.logger.ErrorContext(ctx, "guardrail evaluation failed", "profile", profile.Name, "error", err)
		return outcome{
			action: policy.ActionError,
			block:  true,
			err:    err,
			evalMS: evalMS,
			status: http.StatusInternalServerError,
		}
	}

	action, block := policy.DecideAction(profile.Mode, result.Decision)
	if result.Decision.Blocked() {
		g.logger.InfoContext(ctx, "guardrail triggered",
			"profile", profile.Name,
			"action", action,
			"detector", result.Detector,
			"category", result.Category,
		)
	}
	return outcome{result: result, action: action, block: block, evalMS: evalMS}
}

func (o outcome) apply(decision *logging.Decision) {
	decision.Action = string(o.action)
	decision.Detector = o.result.Detector
	decision.Category = o.result.Category
	decision.Reason = o.result.Decision.Reason()
	decision.EvalMS = o.evalMS
	switch {
	case errors.Is(o.err, errInputTooLarge):
		decision.Reason = o.err.Error()
		decision.StatusCode = o.status
	case o.err != nil:
		decision.Error = o.err.Error()
		decision.StatusCode = o.status
	}
}

func (o outcome) errorType() string {
	if errors.Is(o.err, errInputTooLarge) {
		return "input_too_large"
	}
	return "guardrail_error"
}

func (o outcome) message() string {
	if errors.Is(o.err, errInputTooLarge) {
		return errInputTooLarge.Error()
	}
	return "guardrail evaluation failed"
}

var (
	errInputTooLarge = errors.New("input exceeds inspection limit")
	errBodyTooLarge  = errors.New("request body too large")
)

func (g *Gateway) resolveRoute(r *http.Request) (Route, *policy.Profile, *httputil.ReverseProxy, bool) {
	route, ok := g.router.Match(r)
	if !ok {
		return Route{}, nil, nil, false
	}

	profile, ok := g.profiles[route.Profile]
	if !ok {
		return Route{}, nil, nil, false
	}
	proxy, ok := g.proxies[route.Upstream]
	if !ok {
		return Route{}, nil, nil, false
	}

	return route, profile, proxy, true
}

func (g *Gateway) writeDecision(decision logging.Decision, start time.Time) {
	decision.DurationMS = time.Since(start).Milliseconds()
	if g.decisionLog != nil {
		if err := g.decisionLog.Write(decision); err != nil {
			g.logger.Warn("decision log write failed", "error", err)
		}
	}
	g.metrics.Observe(decision)
}

// readBody buffers the request body up to limit bytes. A limit of zero
// disables the cap.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, int, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, 0, nil
	}
	if limit > 0 {
		if r.ContentLength > limit {
			return nil, http.StatusRequestEntityTooLarge, errBodyTooLarge
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, http.StatusRequestEntityTooLarge, errBodyTooLarge
		}
		return nil, http.StatusBadRequest, errors.New("read request body")
	}
	return body, 0, nil
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streamed completions flowing through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func maxProfileTimeout(profiles map[string]*policy.Profile) time.Duration {
	var max time.Duration
	for _, p := range profiles {
		if t := p.Timeout(0); t > max {
			max = t
		}
	}
	if max <= 0 {
		max = defaultTimeout
	}
	return max
}

func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}
