package dashboard

import (
	"fmt"
	"strings"

	"github.com/babevm/babevm-sub001/internal/frame"
	"github.com/babevm/babevm-sub001/internal/thread"
)

func statusLabel(s thread.Status) string {
	switch s {
	case thread.Runnable:
		return "runnable"
	case thread.Blocked:
		return "blocked"
	case thread.Waiting:
		return "waiting"
	case thread.Sleeping:
		return "sleeping"
	case thread.Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

func statusStyle(s thread.Status) func(string, ...any) string {
	switch s {
	case thread.Runnable:
		return func(f string, a ...any) string { return GoodStyle.Render(fmt.Sprintf(f, a...)) }
	case thread.Blocked, thread.Waiting:
		return func(f string, a ...any) string { return WarningStyle.Render(fmt.Sprintf(f, a...)) }
	case thread.Terminated:
		return func(f string, a ...any) string { return MutedStyle.Render(fmt.Sprintf(f, a...)) }
	default:
		return func(f string, a ...any) string { return TextStyle.Render(fmt.Sprintf(f, a...)) }
	}
}

// renderThreads lists every thread the scheduler has ever registered, with
// the selected thread's call stack expanded underneath it.
func renderThreads(threads []*thread.Thread, selected int, width, height int) string {
	var b strings.Builder

	fmt.Fprintln(&b, TitleStyle.Render(fmt.Sprintf("Threads (%d)", len(threads))))
	for i, t := range threads {
		marker := "  "
		if i == selected {
			marker = "▸ "
		}
		style := statusStyle(t.Status)
		fmt.Fprintf(&b, "%s%-20s %s\n", marker, TruncateString(t.Name, 20), style("[%s]", statusLabel(t.Status)))
	}

	if selected >= 0 && selected < len(threads) {
		fmt.Fprintln(&b, "")
		fmt.Fprintln(&b, TitleStyle.Render("Call stack"))
		fmt.Fprint(&b, formatStackTrace(threads[selected]))
	}

	return BoxStyle.Width(width - 4).Height(height - 2).Render(b.String())
}

// formatStackTrace renders t's frame chain top-to-bottom, the same text
// handed to the clipboard by Model.handleCopy.
func formatStackTrace(t *thread.Thread) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", t.Name, statusLabel(t.Status))
	if t.Stack == nil {
		return b.String()
	}
	t.Stack.Walk(func(f *frame.Frame) {
		if f.IsWedge() {
			fmt.Fprintln(&b, "\tat <native callback>")
			return
		}
		fmt.Fprintf(&b, "\tat %s.%s (pc=%d)\n", f.Clazz.Name, f.Method.Name, f.PC)
	})
	return b.String()
}
