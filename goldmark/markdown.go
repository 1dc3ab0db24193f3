// Package goldmark renders answers to ANSI-styled terminal output using
// goldmark for parsing and lipgloss for styling.
package goldmark

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/hangar"
)

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width. Code blocks and
// tables are rendered without reflow.
func Render(source string, width int, theme hangar.Theme) string {
	if source == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r := newRenderer(theme)
	return r.render([]byte(source), width)
}

// Step is one tool call made while answering, in the order it was made.
type Step struct {
	Tool      string
	IsError   bool
	ErrorKind string
}

// AnswerView is the presentable part of an answer.
type AnswerView struct {
	Domain   string
	Text     string
	Degraded bool
	Steps    []Step
}

// RenderAnswer renders a domain badge, the tool calls made and the answer
// text. When verbose is false tool calls are summarized on a single line.
func RenderAnswer(v AnswerView, width int, theme hangar.Theme, verbose bool) string {
	if width <= 0 {
		width = 80
	}
	badge := lipgloss.NewStyle().Foreground(ansiColor(theme.Domain)).Bold(true)
	muted := lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true)
	tool := lipgloss.NewStyle().Foreground(ansiColor(theme.ToolCall))
	failed := lipgloss.NewStyle().Foreground(ansiColor(theme.Error))
	caveat := lipgloss.NewStyle().Foreground(ansiColor(theme.Degraded)).Bold(true)

	var sb strings.Builder
	sb.WriteString(badge.Render("[" + v.Domain + "]"))
	if v.Degraded {
		sb.WriteString(" ")
		sb.WriteString(caveat.Render("incomplete"))
	}
	sb.WriteString("\n\n")

	if len(v.Steps) > 0 {
		if verbose {
			for _, s := range v.Steps {
				line := tool.Render("→ " + s.Tool)
				if s.IsError {
					line += " " + failed.Render("("+s.ErrorKind+")")
				}
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		} else {
			errs := 0
			for _, s := range v.Steps {
				if s.IsError {
					errs++
				}
			}
			summary := fmt.Sprintf("%d tool calls", len(v.Steps))
			if errs > 0 {
				summary += fmt.Sprintf(", %d failed", errs)
			}
			sb.WriteString(muted.Render(summary))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(Render(v.Text, width, theme))
	return sb.String()
}
