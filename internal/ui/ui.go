// Package ui renders harness reports for the terminal. It is a pure
// presentation layer: everything it consumes comes through the result
// contract, and nothing in it feeds back into verification.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ahm4dd/ipc-race/internal/harness"
	"github.com/ahm4dd/ipc-race/internal/stringutil"
)

// Color constants to avoid duplication (DRY).
const (
	colorPrimary = "#7D56F4"
	colorDim     = "#666666"
	colorError   = "#FF5F87"
	colorGreen   = "#87D787"
	colorYellow  = "#FFD787"
)

// Styles for the report output (SST - single source of truth for styling).
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary))

	passStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorGreen))

	failStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorError))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorYellow))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorDim))
)

// maxNameWidth keeps worker columns readable for generated names.
const maxNameWidth = 24

// Title renders a section heading.
func Title(s string) string {
	return titleStyle.Render(s)
}

// Pass, Fail and Warn render status lines with their symbol.
func Pass(s string) string { return passStyle.Render("✓ " + s) }
func Fail(s string) string { return failStyle.Render("✗ " + s) }
func Warn(s string) string { return warnStyle.Render("⚠ " + s) }

// Dim renders secondary detail.
func Dim(s string) string { return dimStyle.Render(s) }

// RenderResult renders the presentation contract: one status line plus
// the dimmed summary.
func RenderResult(res harness.Result) string {
	var b strings.Builder
	switch {
	case res.Success:
		b.WriteString(Pass(res.Message))
	case strings.Contains(res.Message, "inconclusive"):
		b.WriteString(Warn(res.Message))
	default:
		b.WriteString(Fail(res.Message))
	}
	if res.Summary != "" {
		b.WriteString("\n")
		b.WriteString(Dim("  " + res.Summary))
	}
	return b.String()
}

// RenderReport renders a full run: heading, one line per worker, then
// the verdict.
func RenderReport(rep *harness.Report) string {
	var b strings.Builder

	mode := "unsynchronized"
	if rep.Job.Locked {
		mode = "locked"
	}
	b.WriteString(Title(fmt.Sprintf("%s (%s, %d %s)",
		rep.Job.Scenario, mode, len(rep.Results),
		stringutil.Plural(len(rep.Results), "worker", ""))))
	b.WriteString("\n\n")

	for _, res := range rep.Results {
		b.WriteString(renderWorker(rep.Job.Mode, res))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(RenderResult(rep.Result()))
	b.WriteString("\n")
	return b.String()
}

func renderWorker(mode harness.Mode, res harness.WorkerResult) string {
	name := stringutil.Truncate(res.Spec.Name, maxNameWidth)
	if res.Err != nil {
		return fmt.Sprintf("  %s %s", failStyle.Render("✗"),
			fmt.Sprintf("%-*s %v", maxNameWidth, name, res.Err))
	}

	var detail string
	switch mode {
	case harness.ModeGuarded:
		detail = fmt.Sprintf("completed %s  succeeded %s  rejected %s",
			stringutil.PadLeft(res.Outcome.Completed, 3),
			stringutil.PadLeft(res.Outcome.Succeeded, 3),
			stringutil.PadLeft(res.Outcome.Rejected, 3))
	default:
		detail = fmt.Sprintf("completed %s", stringutil.PadLeft(res.Outcome.Completed, 3))
	}
	return fmt.Sprintf("  %s %-*s %s", passStyle.Render("✓"), maxNameWidth, name, Dim(detail))
}
