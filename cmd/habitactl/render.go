package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/habitaworks/habita/internal/report"
	"github.com/habitaworks/habita/internal/schedule"
)

// renderReport converts a monthly report into ANSI-styled terminal output.
// When styling fails the raw markdown is returned so the data is never lost.
func renderReport(m report.Monthly, width int) string {
	markdown := reportMarkdown(m)
	if width < 24 {
		width = 24
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

func reportMarkdown(m report.Monthly) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Workforce report — %s %d\n\n", m.PeriodStart.Month(), m.Year)
	fmt.Fprintf(&b, "Period %s to %s, generated %s.\n\n",
		m.PeriodStart.Format("2006-01-02"),
		m.PeriodEnd.Format("2006-01-02"),
		m.GeneratedAt.Format("2006-01-02 15:04 MST"))

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "| Completed items | Total cost | Efficiency | Workers | Categories |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %.2f | %d%% | %d | %d |\n\n",
		m.Summary.TotalItems, m.Summary.TotalCost, m.Summary.EfficiencyRate,
		m.Summary.WorkerCount, m.Summary.CategoryCount)

	fmt.Fprintf(&b, "## Time performance\n\n")
	fmt.Fprintf(&b, "- early: %d, on time: %d, late: %d\n",
		m.TimePerformance.Early, m.TimePerformance.OnTime, m.TimePerformance.Late)
	fmt.Fprintf(&b, "- average duration: %s\n", schedule.FormatDuration(m.TimePerformance.AvgDuration))
	fmt.Fprintf(&b, "- average delay: %s\n\n", schedule.FormatDuration(m.TimePerformance.AvgDelay))

	if len(m.Workers) > 0 {
		fmt.Fprintf(&b, "## Workers\n\n")
		fmt.Fprintf(&b, "| Worker | Completed | Early | On time | Late | Cost share | Subtasks |\n")
		fmt.Fprintf(&b, "|---|---|---|---|---|---|---|\n")
		for _, w := range m.Workers {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %.2f | %d |\n",
				w.Name, w.Completed, w.Early, w.OnTime, w.Late, w.TotalCost, w.SubtasksCompleted)
		}
		b.WriteString("\n")
	}

	if len(m.Categories) > 0 {
		fmt.Fprintf(&b, "## Categories\n\n")
		fmt.Fprintf(&b, "| Category | Items | Cost | Share |\n")
		fmt.Fprintf(&b, "|---|---|---|---|\n")
		for _, c := range m.Categories {
			fmt.Fprintf(&b, "| %s | %d | %.2f | %.1f%% |\n", c.Category, c.Count, c.TotalCost, c.Percent)
		}
		b.WriteString("\n")
	}
	return b.String()
}
