package report

import (
	"bufio"
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/klyr/promptguard/internal/logging"
)

const (
	topN       = 5
	maxLineLen = 1 << 20
)

type Summary struct {
	Total         int            `json:"total"`
	Allowed       int            `json:"allowed"`
	Blocked       int            `json:"blocked"`
	Shadowed      int            `json:"shadowed"`
	Errors        int            `json:"errors"`
	Start         time.Time      `json:"start"`
	End           time.Time      `json:"end"`
	TopDetectors  []CountItem    `json:"top_detectors"`
	TopCategories []CountItem    `json:"top_categories"`
	TopProfiles   []CountItem    `json:"top_profiles"`
	Latency       LatencySummary `json:"latency"`
	EvalLatency   LatencySummary `json:"eval_latency"`
}

type CountItem struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type LatencySummary struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Reader filters decision log entries while reading them.
type Reader struct {
	Since   time.Time
	Profile string
}

func (r *Reader) ReadFile(path string) ([]logging.Decision, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return r.Read(file)
}

func (r *Reader) Read(src io.Reader) ([]logging.Decision, error) {
	var decisions []logging.Decision
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLen)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var d logging.Decision
		if err := json.Unmarshal([]byte(text), &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !r.Since.IsZero() && d.Timestamp.Before(r.Since) {
			continue
		}
		if r.Profile != "" && d.Profile != r.Profile {
			continue
		}
		decisions = append(decisions, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return decisions, nil
}

func Summarize(decisions []logging.Decision) Summary {
	var summary Summary
	if len(decisions) == 0 {
		return summary
	}

	summary.Start = decisions[0].Timestamp
	summary.End = decisions[0].Timestamp

	detectorCounts := map[string]int{}
	categoryCounts := map[string]int{}
	profileCounts := map[string]int{}
	latencies := make([]float64, 0, len(decisions))
	evalLatencies := make([]float64, 0, len(decisions))

	for _, d := range decisions {
		summary.Total++
		if d.Timestamp.Before(summary.Start) {
			summary.Start = d.Timestamp
		}
		if d.Timestamp.After(summary.End) {
			summary.End = d.Timestamp
		}

		switch d.Action {
		case "allow":
			summary.Allowed++
		case "block":
			summary.Blocked++
		case "shadow":
			summary.Shadowed++
		case "error":
			summary.Errors++
		}

		// Shadowed hits count too: they are the detectors that would block.
		if d.Detector != "" {
			detectorCounts[d.Detector]++
			profileCounts[d.Profile]++
		}
		if d.Category != "" {
			categoryCounts[d.Category]++
		}

		latencies = append(latencies, float64(d.DurationMS))
		if d.Error == "" {
			evalLatencies = append(evalLatencies, d.EvalMS)
		}
	}

	summary.TopDetectors = topCounts(detectorCounts, topN)
	summary.TopCategories = topCounts(categoryCounts, topN)
	summary.TopProfiles = topCounts(profileCounts, topN)
	summary.Latency = latencySummary(latencies)
	summary.EvalLatency = latencySummary(evalLatencies)

	return summary
}

func topCounts(counts map[string]int, n int) []CountItem {
	if len(counts) == 0 {
		return nil
	}
	items := make([]CountItem, 0, len(counts))
	for key, count := range counts {
		items = append(items, CountItem{Key: key, Count: count})
	}
	slices.SortFunc(items, func(a, b CountItem) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return items[:min(n, len(items))]
}

func latencySummary(values []float64) LatencySummary {
	if len(values) == 0 {
		return LatencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	return LatencySummary{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

// percentile picks the nearest rank at or below p from sorted input.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[max(0, min(idx, len(sorted)-1))]
}

func RenderText(summary Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total: %d\n", summary.Total)
	fmt.Fprintf(&b, "Allowed: %d\n", summary.Allowed)
	fmt.Fprintf(&b, "Blocked: %d\n", summary.Blocked)
	fmt.Fprintf(&b, "Shadowed: %d\n", summary.Shadowed)
	fmt.Fprintf(&b, "Errors: %d\n", summary.Errors)
	fmt.Fprintf(&b, "Latency p50/p95/p99 (ms): %.0f/%.0f/%.0f\n", summary.Latency.P50, summary.Latency.P95, summary.Latency.P99)
	fmt.Fprintf(&b, "Evaluation p50/p95/p99 (ms): %.3f/%.3f/%.3f\n", summary.EvalLatency.P50, summary.EvalLatency.P95, summary.EvalLatency.P99)

	writeCounts(&b, "Top detectors", summary.TopDetectors)
	writeCounts(&b, "Top categories", summary.TopCategories)
	writeCounts(&b, "Top profiles", summary.TopProfiles)

	return b.String()
}

func RenderMarkdown(summary Summary) string {
	var b strings.Builder
	b.WriteString("# promptguard report\n\n")
	if !summary.Start.IsZero() {
		fmt.Fprintf(&b, "%s to %s\n\n", summary.Start.Format(time.RFC3339), summary.End.Format(time.RFC3339))
	}
	b.WriteString("## Totals\n\n")
	b.WriteString("| Action | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| allow | %d |\n", summary.Allowed)
	fmt.Fprintf(&b, "| block | %d |\n", summary.Blocked)
	fmt.Fprintf(&b, "| shadow | %d |\n", summary.Shadowed)
	fmt.Fprintf(&b, "| error | %d |\n", summary.Errors)
	fmt.Fprintf(&b, "| **total** | **%d** |\n\n", summary.Total)
	fmt.Fprintf(&b, "- Latency p50/p95/p99 (ms): %.0f/%.0f/%.0f\n", summary.Latency.P50, summary.Latency.P95, summary.Latency.P99)
	fmt.Fprintf(&b, "- Evaluation p50/p95/p99 (ms): %.3f/%.3f/%.3f\n\n", summary.EvalLatency.P50, summary.EvalLatency.P95, summary.EvalLatency.P99)

	writeCountsMarkdown(&b, "Top detectors", summary.TopDetectors)
	writeCountsMarkdown(&b, "Top categories", summary.TopCategories)
	writeCountsMarkdown(&b, "Top profiles", summary.TopProfiles)

	return b.String()
}

func RenderJSON(summary Summary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

// Render dispatches on format: text, md, or json.
func Render(summary Summary, format string) ([]byte, error) {
	switch format {
	case "", "text":
		return []byte(RenderText(summary)), nil
	case "md", "markdown":
		return []byte(RenderMarkdown(summary)), nil
	case "json":
		data, err := RenderJSON(summary)
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func writeCounts(b *strings.Builder, title string, items []CountItem) {
	if len(items) == 0 {
		fmt.Fprintf(b, "%s: none\n", title)
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %d\n", item.Key, item.Count)
	}
}

func writeCountsMarkdown(b *strings.Builder, title string, items []CountItem) {
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n\n")
	if len(items) == 0 {
		b.WriteString("- none\n\n")
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s: %d\n", item.Key, item.Count)
	}
	b.WriteString("\n")
}

func WriteOutput(w io.Writer, path string, content []byte) error {
	if path == "" {
		_, err := w.Write(content)
		return err
	}
	return os.WriteFile(path, content, 0o600)
}
