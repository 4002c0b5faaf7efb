// Package dashboard is a live bubbletea TUI attached to a running *vm.VM:
// a thread tab (every registered green thread and its call stack), a heap
// tab (arena occupancy), and a GC tab (internal/gcstats' rolling metrics
// and recommendations).
//
// Grounded on internal/tui's tab-navigation Model/Update/View shape
// (app.go, types.go) and internal/gc/tui's dashboard rendering
// (dashboard.go, trends.go), re-pointed from a parsed *gc.GCLog/*gc.Analysis
// at live state read straight off *vm.VM -- there is no second process
// producing a log file here, so every render call re-reads the VM directly.
package dashboard

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/babevm/babevm-sub001/internal/thread"
	"github.com/babevm/babevm-sub001/internal/vm"
)

// TabType selects which of the dashboard's three views is rendered.
type TabType int

const (
	ThreadsTab TabType = iota
	HeapTab
	GCTab
)

// KeyMap is the dashboard's key bindings, same shape as internal/tui's.
type KeyMap struct {
	Tab1  key.Binding
	Tab2  key.Binding
	Tab3  key.Binding
	Up    key.Binding
	Down  key.Binding
	Copy  key.Binding
	Quit  key.Binding
}

func binding(keys []string, help, desc string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
}

func defaultKeyMap() KeyMap {
	return KeyMap{
		Tab1: binding([]string{"1"}, "1", "threads"),
		Tab2: binding([]string{"2"}, "2", "heap"),
		Tab3: binding([]string{"3"}, "3", "gc"),
		Up:   binding([]string{"up", "k"}, "↑/k", "up"),
		Down: binding([]string{"down", "j"}, "↓/j", "down"),
		Copy: binding([]string{"c"}, "c", "copy stack trace"),
		Quit: binding([]string{"q", "ctrl+c"}, "q", "quit"),
	}
}

// Model is the dashboard's bubbletea model: a read-only window over v.
type Model struct {
	v *vm.VM

	currentTab TabType
	width      int
	height     int

	selectedThread int
	scroll         map[TabType]int
	keys           KeyMap

	status string // transient footer message, e.g. "copied to clipboard"
}

func initialModel(v *vm.VM) *Model {
	return &Model{
		v:      v,
		keys:   defaultKeyMap(),
		scroll: make(map[TabType]int),
	}
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "1":
			m.currentTab = ThreadsTab
		case "2":
			m.currentTab = HeapTab
		case "3":
			m.currentTab = GCTab
		case "up", "k":
			m.handleUp()
		case "down", "j":
			m.handleDown()
		case "c":
			m.handleCopy()
		}
	}
	return m, nil
}

func (m *Model) handleUp() {
	switch m.currentTab {
	case ThreadsTab:
		if m.selectedThread > 0 {
			m.selectedThread--
		}
	default:
		if m.scroll[m.currentTab] > 0 {
			m.scroll[m.currentTab]--
		}
	}
}

func (m *Model) handleDown() {
	switch m.currentTab {
	case ThreadsTab:
		if m.selectedThread < len(m.liveThreads())-1 {
			m.selectedThread++
		}
	default:
		m.scroll[m.currentTab]++
	}
}

// handleCopy writes the selected thread's call stack to the system
// clipboard, the one feature this dashboard needs atotto/clipboard for.
func (m *Model) handleCopy() {
	if m.currentTab != ThreadsTab {
		return
	}
	threads := m.liveThreads()
	if m.selectedThread < 0 || m.selectedThread >= len(threads) {
		return
	}
	trace := formatStackTrace(threads[m.selectedThread])
	if err := clipboard.WriteAll(trace); err != nil {
		m.status = fmt.Sprintf("clipboard error: %v", err)
		return
	}
	m.status = "stack trace copied to clipboard"
}

func (m *Model) liveThreads() []*thread.Thread {
	var threads []*thread.Thread
	m.v.Sched.Walk(func(t *thread.Thread) {
		threads = append(threads, t)
	})
	return threads
}

func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	var content string
	switch m.currentTab {
	case ThreadsTab:
		content = renderThreads(m.liveThreads(), m.selectedThread, m.width, m.height-6)
	case HeapTab:
		content = renderHeap(m.v, m.width, m.height-6)
	case GCTab:
		content = renderGC(m.v, m.width, m.height-6)
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), content, m.renderFooter())
}

func (m *Model) renderHeader() string {
	names := []string{"Threads", "Heap", "GC"}
	icons := []string{"🧵", "📦", "🔍"}

	var tabs []string
	for i, name := range names {
		style := TabInactiveStyle
		indicator := " "
		if TabType(i) == m.currentTab {
			style = TabActiveStyle
			indicator = "●"
		}
		tabs = append(tabs, style.Render(fmt.Sprintf("%s %s %s [%d]", indicator, icons[i], name, i+1)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		strings.Join(tabs, "  "),
		strings.Repeat("─", m.width),
	)
}

func (m *Model) renderFooter() string {
	if m.status == "" {
		return HelpBarStyle.Render("1/2/3 tabs · ↑/↓ select · c copy stack · q quit")
	}
	return HelpBarStyle.Render(m.status)
}

// Attach runs the dashboard against v until the user quits.
func Attach(v *vm.VM) error {
	program := tea.NewProgram(initialModel(v), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
