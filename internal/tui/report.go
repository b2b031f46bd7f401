package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/loqalabs/loqa-interview/internal/api"
)

var (
	cardTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	strengthStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	weaknessStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAAD14"))
	cardStyle      = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
)

// RenderReport formats a final report. maxAttempts of zero hides the
// remaining attempts line.
func RenderReport(r api.Report, maxAttempts int) string {
	var b strings.Builder

	header := cardTitleStyle.Render("Final score ") + cardValueStyle.Render(formatScore(r.FinalScore))
	if r.Attempt > 0 {
		header += cardTitleStyle.Render(fmt.Sprintf("   attempt %d", r.Attempt))
		if maxAttempts > 0 {
			header += cardTitleStyle.Render(fmt.Sprintf(" of %d", maxAttempts))
		}
	}
	b.WriteString(header)
	b.WriteString("\n\n")

	var cards []string
	for _, metric := range r.Metrics() {
		if metric.Value == nil {
			continue
		}
		cards = append(cards, cardStyle.Render(cardTitleStyle.Render(metric.Name)+"\n"+cardValueStyle.Render(formatScore(metric.Value))))
	}
	for len(cards) > 0 {
		n := min(5, len(cards))
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards[:n]...))
		b.WriteString("\n")
		cards = cards[n:]
	}

	if len(r.Strengths) > 0 {
		b.WriteString("\n")
		b.WriteString(cardTitleStyle.Render("Strengths"))
		b.WriteString("\n")
		for _, s := range r.Strengths {
			b.WriteString(strengthStyle.Render("+ " + s))
			b.WriteString("\n")
		}
	}
	if len(r.Weaknesses) > 0 {
		b.WriteString("\n")
		b.WriteString(cardTitleStyle.Render("To improve"))
		b.WriteString("\n")
		for _, s := range r.Weaknesses {
			b.WriteString(weaknessStyle.Render("- " + s))
			b.WriteString("\n")
		}
	}

	if len(r.Answers) > 0 {
		b.WriteString("\n")
		for i, a := range r.Answers {
			q := a.Question
			if q == "" {
				q = a.QuestionID
			}
			b.WriteString(questionStyle.Render(fmt.Sprintf("Q%d  %s", i+1, q)))
			b.WriteString("\n")
			if a.Answer != "" {
				b.WriteString(userStyle.Render("    " + a.Answer))
				b.WriteString("\n")
			}
			if a.PronScore != nil {
				b.WriteString(cardTitleStyle.Render("    pronunciation " + formatScore(a.PronScore)))
				b.WriteString("\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatScore(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *v)
}
