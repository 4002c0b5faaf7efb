// Package gcstats records this process's own collector events and analyzes
// them for health, replacing the teacher's external-G1-log pipeline with a
// self-instrumentation one: there is no external log to parse here, since
// every event is handed straight from internal/gc.Collector.OnCollect
// rather than scraped out of a JVM's -Xlog:gc output.
//
// Grounded on jdiag's internal/gc/metrics.go (CalculateMetrics' sort-and-
// percentile pause-time shape) and internal/gc/recommendation.go (severity-
// bucketed issue flags), re-pointed at a single generic Event instead of
// young/mixed/full G1 pause records (this VM runs one collection kind, so
// there is no generational/cause breakdown to report). Percentile/variance/
// trend math is the teacher's utils package (LinearRegression, Variance,
// FormatDuration, MemorySize), unchanged.
package gcstats

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/babevm/babevm-sub001/utils"
)

// Event is one internal/gc.Collector.Collect call.
type Event struct {
	At           time.Time
	Before       utils.MemorySize // arena free bytes immediately before
	After        utils.MemorySize // arena free bytes immediately after
	Pause        time.Duration
	HeapCapacity utils.MemorySize
}

// Reclaimed is how many bytes this collection returned to the free list
// (zero when the collection found nothing unreachable).
func (e Event) Reclaimed() utils.MemorySize { return e.After - e.Before }

// Log is a bounded ring of recent events: internal/vm appends to it from
// internal/gc.Collector.OnCollect, and internal/dashboard/cmd read it back.
// Bounded rather than unbounded because a long-running embedded VM must not
// let its own diagnostics become the memory leak (spec.md §1's embeddability
// goal applies to this package too, even though it is itself a supplement).
type Log struct {
	cap    int
	events []Event
}

// NewLog creates a ring buffer holding at most capacity events.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 256
	}
	return &Log{cap: capacity}
}

// Append records e, dropping the oldest event once the log is full.
func (l *Log) Append(e Event) {
	l.events = append(l.events, e)
	if len(l.events) > l.cap {
		l.events = l.events[len(l.events)-l.cap:]
	}
}

// Events returns every event currently retained, oldest first.
func (l *Log) Events() []Event { return l.events }

// Metrics summarizes a window of collector events.
type Metrics struct {
	TotalEvents int
	TotalPause  time.Duration
	MinPause    time.Duration
	MaxPause    time.Duration
	AvgPause    time.Duration
	P95Pause    time.Duration
	PauseJitter float64 // normalized variance of pause duration, 0 is perfectly steady

	AvgReclaimed utils.MemorySize
	// HeadroomSlope is the linear-regression slope of post-collection free
	// bytes against event index: negative means each collection is
	// reclaiming less than the last, the leading indicator of a shrinking
	// heap (spec.md §4.G collector behavior, observed rather than asserted).
	HeadroomSlope       float64
	HeadroomCorrelation float64
}

// Analyze computes rolling pause-time and reclamation-rate metrics over
// events, the same percentile/variance math jdiag/internal/gc/metrics.go
// applies to parsed G1 pause records.
func Analyze(events []Event) Metrics {
	var m Metrics
	m.TotalEvents = len(events)
	if len(events) == 0 {
		return m
	}

	durations := make([]time.Duration, len(events))
	var reclaimedSum utils.MemorySize
	afterSeries := make([]float64, len(events))
	indexSeries := make([]float64, len(events))

	for i, e := range events {
		durations[i] = e.Pause
		m.TotalPause += e.Pause
		reclaimedSum += e.Reclaimed()
		afterSeries[i] = float64(e.After)
		indexSeries[i] = float64(i)
	}

	sorted := append([]time.Duration(nil), durations...)
	slices.Sort(sorted)
	m.MinPause = sorted[0]
	m.MaxPause = sorted[len(sorted)-1]
	m.AvgPause = m.TotalPause / time.Duration(len(events))
	m.P95Pause = percentile(sorted, 95)
	m.PauseJitter = utils.CalculateDurationVariance(durations, m.AvgPause)

	m.AvgReclaimed = reclaimedSum / utils.MemorySize(len(events))
	m.HeadroomSlope, m.HeadroomCorrelation = utils.LinearRegression(indexSeries, afterSeries)

	return m
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (len(sorted) * p) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Severity classifies a Recommend finding.
type Severity int

const (
	Info Severity = iota
	Warning
	Critical
)

func (s Severity) icon() string {
	switch s {
	case Critical:
		return "🔴"
	case Warning:
		return "🟡"
	default:
		return "🟢"
	}
}

// Issue is one flagged health concern.
type Issue struct {
	Severity Severity
	Message  string
}

// Recommend flags heap pressure and pause-time concerns the way
// jdiag/internal/gc/recommendation.go flags G1 tuning issues, scaled down
// to the handful of signals a single generational-less stop-the-world
// collector can actually produce: shrinking headroom, rising/jittery
// pauses, and a low average reclamation rate (repeated collections barely
// freeing anything, the closest analog this VM has to jdiag's memory-leak
// detector).
func Recommend(m Metrics) []Issue {
	var issues []Issue
	if m.TotalEvents == 0 {
		return issues
	}

	if m.HeadroomSlope < 0 && m.HeadroomCorrelation < -0.6 {
		issues = append(issues, Issue{
			Severity: Critical,
			Message: fmt.Sprintf(
				"post-collection free heap is trending down (slope %.1f bytes/collection, correlation %.2f) -- the live set is growing faster than collections reclaim; raise the heap size or find the leak",
				m.HeadroomSlope, m.HeadroomCorrelation),
		})
	}

	if m.AvgReclaimed < 0 {
		issues = append(issues, Issue{
			Severity: Warning,
			Message:  "average reclamation per collection is negative -- collections are running more often than they're helping, consider a larger heap",
		})
	}

	if m.MaxPause > 50*time.Millisecond {
		issues = append(issues, Issue{
			Severity: Warning,
			Message: fmt.Sprintf(
				"longest observed pause was %s -- a bigger heap (fewer, cheaper collections) or fewer live roots may help latency-sensitive workloads",
				utils.FormatDuration(m.MaxPause)),
		})
	}

	if m.PauseJitter > 1.0 {
		issues = append(issues, Issue{
			Severity: Info,
			Message:  "pause durations are highly variable between collections",
		})
	}

	return issues
}

// Format renders a human-readable summary in the teacher's emoji-tagged
// plain-fmt style (jdiag/internal/gc/formatter.go's PrintSummary shape).
func Format(m Metrics, issues []Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 GC health (%d collections, %s total pause)\n",
		m.TotalEvents, utils.FormatDuration(m.TotalPause))
	fmt.Fprintln(&b, strings.Repeat("─", 44))
	fmt.Fprintf(&b, "⏱️  Pause min/avg/p95/max: %s / %s / %s / %s\n",
		utils.FormatDuration(m.MinPause), utils.FormatDuration(m.AvgPause),
		utils.FormatDuration(m.P95Pause), utils.FormatDuration(m.MaxPause))
	fmt.Fprintf(&b, "📦 Average reclaimed per collection: %s\n", m.AvgReclaimed)

	if len(issues) == 0 {
		fmt.Fprintln(&b, "🟢 No issues flagged")
		return b.String()
	}
	for _, iss := range issues {
		fmt.Fprintf(&b, "%s %s\n", iss.Severity.icon(), iss.Message)
	}
	return b.String()
}
