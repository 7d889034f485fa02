// Package app is the watch-mode dashboard: check status, the last code,
// fill results and recent check history.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/otp-autofill/internal/dispatch"
	"github.com/nhle/otp-autofill/internal/keys"
	"github.com/nhle/otp-autofill/internal/model"
	appsync "github.com/nhle/otp-autofill/internal/sync"
	"github.com/nhle/otp-autofill/internal/theme"
	"github.com/nhle/otp-autofill/internal/ui"
)

// historyLimit is how many past checks the dashboard lists.
const historyLimit = 8

// fillTimeout bounds a manual "fill again".
const fillTimeout = 15 * time.Second

// Poller runs check cycles in the background.
type Poller interface {
	Start() tea.Cmd
	Trigger() tea.Cmd
	WaitForNextResult() tea.Cmd
	Status() appsync.Status
}

// Filler sends a code to the open tabs.
type Filler interface {
	FillCode(ctx context.Context, code string) (dispatch.Report, error)
}

// History reads past checks and codes.
type History interface {
	RecentChecks(ctx context.Context, limit int) ([]model.CheckRecord, error)
	LastCode(ctx context.Context) (*model.Code, error)
}

// historyMsg carries reloaded history to the UI.
type historyMsg struct {
	checks []model.CheckRecord
	last   *model.Code
	err    error
}

// fillResultMsg carries the outcome of a manual fill.
type fillResultMsg struct {
	report dispatch.Report
	err    error
}

// Model is the root Bubble Tea model of the dashboard.
type Model struct {
	layout  ui.Layout
	keys    *keys.KeyMap
	help    help.Model
	spinner spinner.Model

	poller  Poller
	filler  Filler
	history History

	provider model.ProviderType
	checking bool
	last     *appsync.ResultMsg
	lastCode *model.Code
	report   *dispatch.Report
	checks   []model.CheckRecord

	statusMsg        string
	authErrorMessage string
	showHelp         bool
	ready            bool
}

// New creates the dashboard model.
func New(p Poller, f Filler, h History, provider model.ProviderType) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		layout:   ui.NewLayout(80, 24),
		keys:     keys.DefaultKeyMap(),
		help:     help.New(),
		spinner:  sp,
		poller:   p,
		filler:   f,
		history:  h,
		provider: provider,
	}
}

// Init starts the poller, runs a first check and loads history.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.poller.Start(),
		m.poller.Trigger(),
		m.loadHistory(),
		m.spinner.Tick,
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.help.Width = msg.Width
		m.ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case appsync.ResultMsg:
		m.checking = false
		res := msg
		m.last = &res
		if msg.AuthError != nil {
			m.authErrorMessage = msg.AuthError.Message
		} else if msg.Error == nil {
			m.authErrorMessage = ""
		}
		if msg.Result.Status == model.CheckCodeFound {
			code := msg.Result.Code
			m.lastCode = &code
		}
		return m, tea.Batch(m.poller.WaitForNextResult(), m.loadHistory())

	case historyMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Loading history: %v", msg.err)
			return m, nil
		}
		m.checks = msg.checks
		if m.lastCode == nil {
			m.lastCode = msg.last
		}
		return m, nil

	case fillResultMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Fill failed: %v", msg.err)
			return m, nil
		}
		rep := msg.report
		m.report = &rep
		m.statusMsg = ""
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil
	case key.Matches(msg, m.keys.Check):
		m.checking = true
		m.statusMsg = ""
		return m, m.poller.Trigger()
	case key.Matches(msg, m.keys.Retry):
		if m.lastCode == nil {
			m.statusMsg = "No code to fill yet."
			return m, nil
		}
		return m, m.fill(m.lastCode.Value)
	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadHistory()
	}
	return m, nil
}

func (m Model) loadHistory() tea.Cmd {
	h := m.history
	return func() tea.Msg {
		ctx := context.Background()
		checks, err := h.RecentChecks(ctx, historyLimit)
		if err != nil {
			return historyMsg{err: err}
		}
		last, err := h.LastCode(ctx)
		return historyMsg{checks: checks, last: last, err: err}
	}
}

func (m Model) fill(code string) tea.Cmd {
	f := m.filler
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fillTimeout)
		defer cancel()
		rep, err := f.FillCode(ctx, code)
		return fillResultMsg{report: rep, err: err}
	}
}

// View renders the dashboard.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := m.layout.RenderHeader("otpfill", m.headerStatus())
	statusBar := m.layout.RenderStatusBar(m.help.View(m.keys))
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

func (m Model) headerStatus() string {
	if m.checking || m.poller.Status().State == appsync.CheckRunning {
		return m.spinner.View() + " checking"
	}
	st := m.poller.Status()
	if st.LastCheck.IsZero() {
		return string(m.provider)
	}
	return fmt.Sprintf("%s | %d checks | last %s",
		m.provider, st.Cycles, st.LastCheck.Format("15:04:05"))
}

func (m Model) renderContent() string {
	var b strings.Builder

	if m.authErrorMessage != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorRed).Bold(true).
			Render(m.authErrorMessage))
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderLast())
	b.WriteString("\n\n")

	if m.report != nil {
		b.WriteString(fmt.Sprintf("Tabs: %d  filled: %d  pending: %d  skipped: %d  failed: %d\n\n",
			m.report.Tabs, m.report.Filled, m.report.Pending, m.report.Skipped, m.report.Failed))
	}

	b.WriteString(lipgloss.NewStyle().Bold(true).Render("Recent checks"))
	b.WriteString("\n")
	if len(m.checks) == 0 {
		b.WriteString(theme.HelpStyle.Render("  none yet"))
	}
	for _, c := range m.checks {
		b.WriteString(renderCheck(c))
		b.WriteString("\n")
	}

	if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorYellow).Italic(true).
			Render(m.statusMsg))
	}

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

func (m Model) renderLast() string {
	if m.lastCode == nil {
		return theme.HelpStyle.Render("No code found yet. Press c to check mail.")
	}
	line := "Code " + theme.CodeStyle.Render(m.lastCode.Value) +
		theme.ProviderStyle(m.lastCode.Provider).Render(string(m.lastCode.Provider))
	if !m.lastCode.FoundAt.IsZero() {
		line += theme.HelpStyle.Render(" found " + m.lastCode.FoundAt.Format("15:04:05"))
	}
	if m.last != nil && m.last.Result.Stale {
		line += lipgloss.NewStyle().Foreground(theme.ColorYellow).Render("  (message is old)")
	}
	return line
}

func renderCheck(c model.CheckRecord) string {
	when := c.FinishedAt
	if when.IsZero() {
		when = c.StartedAt
	}
	line := fmt.Sprintf("%s  %s",
		when.Format("15:04:05"),
		theme.CheckStatusStyle(c.Status).Render(string(c.Status)),
	)
	if c.Detail != "" {
		line += "  " + theme.HelpStyle.Render(c.Detail)
	}
	return theme.ListItemStyle.Render(line)
}
