package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	entityStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type inspectorTab int

const (
	tabState inspectorTab = iota
	tabWorld
	tabEvents
	tabLog
)

var tabNames = []string{"state", "world", "events", "log"}

const pageRows = 20

type inspectorModel struct {
	err      error
	ctx      context.Context
	session  *session
	stepper  stepper
	title    string
	lines    []string
	steps    int
	limit    int
	selected int
	filter   textinput.Model
	tab      inspectorTab
	done     bool
	editing  bool
}

func newInspectorModel(ctx context.Context, s *session, st stepper, title string, limit int) *inspectorModel {
	ti := textinput.New()
	ti.Prompt = "filter: "
	ti.Placeholder = "component name"
	ti.Width = 40
	return &inspectorModel{
		ctx:     ctx,
		session: s,
		stepper: st,
		title:   title,
		limit:   limit,
		filter:  ti,
	}
}

func (m *inspectorModel) Init() tea.Cmd {
	return nil
}

// advance runs up to n steps, or until the stepper is exhausted when n <= 0.
// Steps run on the update loop so View never races the session.
func (m *inspectorModel) advance(n int) {
	for i := 0; n <= 0 || i < n; i++ {
		if m.limit > 0 && m.steps >= m.limit {
			m.finish()
			return
		}
		res, err := m.stepper.Step(m.ctx)
		if errors.Is(err, io.EOF) {
			m.finish()
			return
		}
		if err != nil {
			m.err = err
			return
		}
		m.steps++
		line := fmt.Sprintf("%s: %d outgoing", res.label, res.outgoing)
		if res.mismatch {
			line = errorStyle.Render(line + " (differs from recording)")
		}
		m.lines = append(m.lines, line)
	}
}

func (m *inspectorModel) finish() {
	m.done = true
	m.lines = append(m.lines, resultStyle.Render(fmt.Sprintf("finished after %d steps", m.steps)))
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			switch msg.String() {
			case "enter", "esc":
				m.editing = false
				m.filter.Blur()
				m.selected = 0
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "n", " ":
			if !m.done {
				m.err = nil
				m.advance(1)
			}

		case "a":
			if !m.done {
				m.err = nil
				m.advance(0)
			}

		case "tab", "right", "l":
			m.tab = (m.tab + 1) % inspectorTab(len(tabNames))
			m.selected = 0

		case "shift+tab", "left", "h":
			m.tab = (m.tab + inspectorTab(len(tabNames)) - 1) % inspectorTab(len(tabNames))
			m.selected = 0

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.selected < len(m.rows())-1 {
				m.selected++
			}

		case "/":
			m.editing = true
			m.filter.Focus()
			return m, textinput.Blink

		case "esc":
			m.filter.SetValue("")
			m.selected = 0
		}

	}

	return m, nil
}

func (m *inspectorModel) matches(name string) bool {
	f := strings.TrimSpace(m.filter.Value())
	return f == "" || strings.Contains(strings.ToLower(name), strings.ToLower(f))
}

func (m *inspectorModel) rows() []string {
	s := m.session
	var rows []string
	switch m.tab {
	case tabState:
		for _, msg := range s.bridge.Snapshot() {
			name := s.componentName(msg.Component)
			if !m.matches(name) {
				continue
			}
			rows = append(rows, fmt.Sprintf("%s %-28s t=%-6d %d bytes",
				entityStyle.Render(fmt.Sprintf("%-10s", msg.Entity)), name, msg.Timestamp, len(msg.Payload)))
		}
	case tabWorld:
		for _, r := range s.worldRows() {
			name := s.componentName(r.component)
			if !m.matches(name) {
				continue
			}
			rows = append(rows, fmt.Sprintf("%s %-28s %s",
				entityStyle.Render(fmt.Sprintf("%-10s", r.entity)), name, formatValue(r.value)))
		}
	case tabEvents:
		for _, ev := range s.events {
			if !m.matches(string(ev.ID)) {
				continue
			}
			rows = append(rows, fmt.Sprintf("%-18s entity=%s address=%s", ev.ID, ev.Entity, ev.Address))
		}
	case tabLog:
		rows = append(rows, m.lines...)
	}
	return rows
}

func (m *inspectorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Scene Bridge"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("\n\n")

	for i, name := range tabNames {
		if inspectorTab(i) == m.tab {
			b.WriteString(activeTabStyle.Render(name))
		} else {
			b.WriteString(tabStyle.Render(name))
		}
	}
	b.WriteString("\n\n")

	st := m.session.bridge.Stats()
	b.WriteString(fmt.Sprintf("steps=%d state=%s cycles=%d faults=%d received=%d obsolete=%d sent=%d\n\n",
		m.steps, m.session.bridge.State(), st.Cycles, st.Faults, st.Received, st.Obsolete, st.Sent))

	rows := m.rows()
	start := 0
	if m.selected >= pageRows {
		start = m.selected - pageRows + 1
	}
	end := min(start+pageRows, len(rows))
	for i := start; i < end; i++ {
		if i == m.selected && m.tab != tabLog {
			b.WriteString(selectedStyle.Render("> " + rows[i]))
		} else {
			b.WriteString("  " + rows[i])
		}
		b.WriteString("\n")
	}
	if len(rows) == 0 {
		b.WriteString(helpStyle.Render("  (empty)"))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.editing || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("n step • a run all • tab view • / filter • q quit"))
	return b.String()
}

func runInteractive(opts runOptions, log *zap.Logger) error {
	ctx := context.Background()

	s, st, err := open(ctx, opts, log)
	if err != nil {
		return err
	}
	defer s.Close()
	defer st.Close(ctx)

	title := opts.replayFile
	limit := 0
	if opts.wasmFile != "" {
		title = opts.wasmFile + " " + opts.funcName + "()"
		limit = opts.ticks
	}
	if strings.TrimSpace(title) == "" {
		title = strconv.Quote(s.cfg.Scene)
	}

	p := tea.NewProgram(newInspectorModel(ctx, s, st, title, limit), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
