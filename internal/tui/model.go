// Package tui provides the Bubble Tea interview practice interface.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loqalabs/loqa-interview/internal/session"
)

// Controller is the part of *session.Controller the UI drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Submit(ctx context.Context) error
	Retake(ctx context.Context) error
	RefreshReport(ctx context.Context) error
	ReplayQuestion()
	Updates() <-chan session.Snapshot
	Snapshot() session.Snapshot
	Entries() []session.Entry
}

type snapshotMsg session.Snapshot

type updatesClosedMsg struct{}

type actionDoneMsg struct {
	action string
	err    error
}

// Model implements the Bubble Tea practice UI.
type Model struct {
	ctx   context.Context
	ctrl  Controller
	title string

	snap    session.Snapshot
	entries []session.Entry
	errMsg  string
	pending string
	spin    spinner.Model

	width  int
	height int
}

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	interimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")).Italic(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	recordStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	paneStyle     = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
)

// NewModel constructs a practice TUI over a session controller.
func NewModel(ctx context.Context, ctrl Controller, title string) *Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = questionStyle
	return &Model{
		ctx:     ctx,
		ctrl:    ctrl,
		title:   title,
		snap:    ctrl.Snapshot(),
		entries: ctrl.Entries(),
		spin:    spin,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.spin.Tick)
}

func (m *Model) waitForUpdate() tea.Cmd {
	updates := m.ctrl.Updates()
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return updatesClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m *Model) run(action string, fn func(context.Context) error) tea.Cmd {
	m.pending = action
	m.errMsg = ""
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		m.entries = m.ctrl.Entries()
		return m, m.waitForUpdate()
	case updatesClosedMsg:
		return m, nil
	case actionDoneMsg:
		if m.pending == msg.action {
			m.pending = ""
		}
		if msg.err != nil {
			m.errMsg = fmt.Sprintf("%s: %v", msg.action, msg.err)
		}
		m.snap = m.ctrl.Snapshot()
		m.entries = m.ctrl.Entries()
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "s":
		return m, m.run("start", m.ctrl.Start)
	case "x":
		return m, m.run("stop", m.ctrl.Stop)
	case "enter":
		return m, m.run("submit", m.ctrl.Submit)
	case "r":
		return m, m.run("retake", m.ctrl.Retake)
	case "f":
		return m, m.run("refresh", m.ctrl.RefreshReport)
	case "p":
		m.ctrl.ReplayQuestion()
		return m, nil
	default:
		return m, nil
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	if m.snap.Report != nil && (m.snap.State == session.StateReportReady || m.snap.State == session.StateMaxAttemptsReached) {
		b.WriteString(RenderReport(*m.snap.Report, m.snap.MaxAttempts))
	} else {
		b.WriteString(m.renderTranscript())
	}
	b.WriteString("\n")

	if m.errMsg != "" {
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteString("\n")
	} else if m.snap.LastError != "" {
		b.WriteString(errorStyle.Render(m.snap.LastError))
		b.WriteString("\n")
	}
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderStatus() string {
	parts := []string{
		fmt.Sprintf("Question %d/%d", m.snap.QuestionIndex+1, m.snap.QuestionCount),
		fmt.Sprintf("Attempt %d/%d", m.snap.Attempt, m.snap.MaxAttempts),
		formatClock(m.snap.Seconds),
	}
	status := statusStyle.Render(strings.Join(parts, "  "))
	switch {
	case m.snap.Answering:
		status += "  " + recordStyle.Render("● REC")
	case m.snap.Submitting:
		label := "submitting"
		if m.snap.State == session.StateAwaitingFinalResult {
			label = "waiting for report"
		}
		status += "  " + m.spin.View() + " " + statusStyle.Render(label)
	case m.snap.Retaking:
		status += "  " + m.spin.View() + " " + statusStyle.Render("resetting interview")
	case m.snap.State == session.StateMaxAttemptsReached:
		status += "  " + errorStyle.Render("max attempts reached")
	}
	return status
}

func (m *Model) renderTranscript() string {
	var lines []string
	asked := false
	for _, e := range m.entries {
		switch e.Sender {
		case session.SenderQuestion:
			asked = asked || e.QuestionIndex == m.snap.QuestionIndex
			lines = append(lines, questionStyle.Render(fmt.Sprintf("Q%d  %s", e.QuestionIndex+1, e.Text)))
		case session.SenderUser:
			if e.Final {
				lines = append(lines, userStyle.Render("You  "+e.Text))
			} else {
				lines = append(lines, interimStyle.Render("You  "+e.Text+" …"))
			}
		}
	}
	if m.snap.State == session.StateIdle && m.snap.Question != "" && !asked {
		// the next question is announced before it joins the transcript
		lines = append(lines, questionStyle.Render(fmt.Sprintf("Q%d  %s", m.snap.QuestionIndex+1, m.snap.Question)))
		lines = append(lines, footerStyle.Render("Press s to start answering."))
	}
	content := strings.Join(lines, "\n")
	if m.width > 4 {
		return paneStyle.Width(m.width - 4).Render(content)
	}
	return paneStyle.Render(content)
}

func (m *Model) renderFooter() string {
	var keys []string
	switch m.snap.State {
	case session.StateIdle:
		keys = []string{"s start", "p replay question"}
	case session.StateRecording:
		keys = []string{"x stop"}
	case session.StateStopped:
		keys = []string{"enter submit", "s re-record", "p replay question"}
	case session.StateAwaitingFinalResult:
		keys = []string{"f refresh report"}
	case session.StateReportReady:
		keys = []string{"r retake"}
	}
	keys = append(keys, "q quit")
	return footerStyle.Render(strings.Join(keys, " · "))
}

// formatClock renders elapsed seconds as mm:ss.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
