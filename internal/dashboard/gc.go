package dashboard

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/linechart/timeserieslinechart"
	"github.com/charmbracelet/lipgloss"

	"github.com/babevm/babevm-sub001/internal/gcstats"
	"github.com/babevm/babevm-sub001/internal/vm"
	"github.com/babevm/babevm-sub001/utils"
)

// renderGC shows internal/gcstats' rolling metrics and any flagged issues
// for the collector attached to v.
func renderGC(v *vm.VM, width, height int) string {
	var b strings.Builder

	events := v.GCLog.Events()
	metrics := gcstats.Analyze(events)
	issues := gcstats.Recommend(metrics)

	fmt.Fprintln(&b, TitleStyle.Render("Garbage collection"))
	if metrics.TotalEvents == 0 {
		fmt.Fprintln(&b, MutedStyle.Render("no collections yet"))
		return BoxStyle.Width(width - 4).Height(height - 2).Render(b.String())
	}

	fmt.Fprintf(&b, "Collections: %d    Total pause: %s\n", metrics.TotalEvents, utils.FormatDuration(metrics.TotalPause))
	fmt.Fprintf(&b, "Pause min/avg/p95/max: %s / %s / %s / %s\n",
		utils.FormatDuration(metrics.MinPause), utils.FormatDuration(metrics.AvgPause),
		utils.FormatDuration(metrics.P95Pause), utils.FormatDuration(metrics.MaxPause))
	fmt.Fprintf(&b, "Average reclaimed per collection: %s\n", metrics.AvgReclaimed)

	fmt.Fprintln(&b, "")
	fmt.Fprintln(&b, MutedStyle.Render("Pause trend (ms)"))
	fmt.Fprintln(&b, renderPauseTrend(events, width-8))

	fmt.Fprintln(&b, "")
	if len(issues) == 0 {
		fmt.Fprintln(&b, GoodStyle.Render("no issues flagged"))
	}
	for _, issue := range issues {
		style := severityStyle(issue.Severity)
		fmt.Fprintln(&b, style.Render(issue.Message))
	}

	return BoxStyle.Width(width - 4).Height(height - 2).Render(b.String())
}

// renderPauseTrend draws a braille sparkline of recent pause durations, the
// one spot this dashboard reaches for ntcharts instead of a plain number --
// a column of digits hides whether pauses are trending up or just jittery.
func renderPauseTrend(events []gcstats.Event, width int) string {
	if width < 10 {
		width = 10
	}
	chart := timeserieslinechart.New(width, 6)
	chart.SetStyle(lipgloss.NewStyle().Foreground(GoodColor))

	// a ring buffer reports events oldest-first already, but cap how far
	// back the sparkline looks so one long-running session doesn't just
	// flatten into noise.
	const maxPoints = 120
	start := 0
	if len(events) > maxPoints {
		start = len(events) - maxPoints
	}
	for _, e := range events[start:] {
		chart.Push(timeserieslinechart.TimePoint{
			Time:  e.At,
			Value: float64(e.Pause.Microseconds()) / 1000,
		})
	}
	chart.DrawBraille()
	return chart.View()
}

func severityStyle(s gcstats.Severity) lipgloss.Style {
	switch s {
	case gcstats.Critical:
		return CriticalStyle
	case gcstats.Warning:
		return WarningStyle
	default:
		return InfoStyle
	}
}
