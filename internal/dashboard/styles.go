package dashboard

import (
	"fmt"
	"math"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

var (
	CriticalColor = lipgloss.Color("#CC3333")
	WarningColor  = lipgloss.Color("#FF8800")
	GoodColor     = lipgloss.Color("#228B22")
	InfoColor     = lipgloss.Color("#4682B4")
	TextColor     = lipgloss.Color("#CCCCCC")
	MutedColor    = lipgloss.Color("#888888")
	BorderColor   = lipgloss.Color("#666666")
)

var (
	CriticalStyle = lipgloss.NewStyle().Foreground(CriticalColor).Bold(true)
	WarningStyle  = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	GoodStyle     = lipgloss.NewStyle().Foreground(GoodColor).Bold(true)
	InfoStyle     = lipgloss.NewStyle().Foreground(InfoColor)
	MutedStyle    = lipgloss.NewStyle().Foreground(MutedColor)
	TextStyle     = lipgloss.NewStyle().Foreground(TextColor)
)

var (
	TabActiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(InfoColor).
			Padding(0, 1).
			Bold(true)

	TabInactiveStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				Padding(0, 1)
)

var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(1, 2)

	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)
)

var HelpBarStyle = lipgloss.NewStyle().
	Foreground(MutedColor).
	Background(lipgloss.Color("#1a1a1a")).
	Padding(0, 1)

type terminalCapabilities struct {
	SupportsUnicode bool
	SupportsColor   bool
}

var termCaps = detectTerminalCapabilities()

func detectTerminalCapabilities() *terminalCapabilities {
	caps := &terminalCapabilities{SupportsUnicode: true, SupportsColor: true}

	term := os.Getenv("TERM")
	if strings.Contains(term, "xterm") || strings.Contains(term, "color") {
		caps.SupportsColor = true
	}

	testStr := "█░"
	if utf8.RuneCountInString(testStr) != len([]rune(testStr)) {
		caps.SupportsUnicode = false
	}

	return caps
}

// CreateProgressBar renders a filled/empty bar for percentage (0..1) across
// width columns. It falls back to a bare percentage when width is under 4,
// and to '#'/'-' characters on terminals without unicode block-element
// support.
func CreateProgressBar(percentage float64, width int, color lipgloss.Color) string {
	if width < 4 {
		return fmt.Sprintf("%.0f%%", percentage*100)
	}

	fillChar, emptyChar := "█", "░"
	if !termCaps.SupportsUnicode {
		fillChar, emptyChar = "#", "-"
	}

	filled := int(math.Round(percentage * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat(fillChar, filled) + strings.Repeat(emptyChar, width-filled)
	if termCaps.SupportsColor && color != "" {
		bar = lipgloss.NewStyle().Foreground(color).Render(bar)
	}
	return bar
}

// TruncateString truncates s to fit within maxWidth, appending "..." when
// it had to cut.
func TruncateString(s string, maxWidth int) string {
	if len(s) <= maxWidth {
		return s
	}
	if maxWidth < 4 {
		return strings.Repeat(".", maxWidth)
	}
	return s[:maxWidth-3] + "..."
}

// WrapText wraps text to fit within the given column width, word by word.
func WrapText(text string, width int) []string {
	if width < 10 {
		return []string{text}
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var current []string
	length := 0
	for _, word := range words {
		if length+len(word)+len(current) > width && len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = []string{word}
			length = len(word)
		} else {
			current = append(current, word)
			length += len(word)
		}
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return lines
}
