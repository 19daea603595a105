// internal/metrics/report.go
package metrics

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// WriteReport renders metrics as a table.
func WriteReport(w io.Writer, metricsSlice []ModelMetrics) error {
	if len(metricsSlice) == 0 {
		_, err := fmt.Fprintln(w, "No metrics recorded yet.")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("MODEL", "REQUESTS", "OK", "ABORTED", "FAILED", "TTFT MS", "DURATION MS", "CHARS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, m := range metricsSlice {
		t.Row(
			m.ModelName,
			fmt.Sprint(m.TotalRequests),
			fmt.Sprint(m.Completed),
			fmt.Sprint(m.Aborted),
			fmt.Sprint(m.Failed),
			formatStat(m.TTFTMillis),
			formatStat(m.TotalDurationMillis),
			formatStat(m.OutputChars),
		)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func formatStat(rs RunningStat) string {
	if rs.Count == 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f (±%.0f)", rs.Mean, rs.StdDev())
}
