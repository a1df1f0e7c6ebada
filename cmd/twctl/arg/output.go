package arg

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

var (
	labelStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	stateColors = map[string]lipgloss.Color{
		"Active":         lipgloss.Color("2"),
		"WarningPending": lipgloss.Color("3"),
		"GracePeriod":    lipgloss.Color("208"),
		"Locked":         lipgloss.Color("1"),
		"OverrideActive": lipgloss.Color("6"),
	}
)

// encode writes v as JSON or YAML. It reports false for table output, which
// the caller renders itself.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return true, enc.Encode(v)
	}
	return false, nil
}

func stateText(state string) string {
	if c, ok := stateColors[state]; ok {
		return lipgloss.NewStyle().Foreground(c).Bold(true).Render(state)
	}
	return state
}

// fields renders label/value pairs with the labels aligned.
func fields(pairs ...[2]string) string {
	width := 0
	for _, p := range pairs {
		width = max(width, lipgloss.Width(p[0]))
	}
	var b strings.Builder
	for _, p := range pairs {
		if p[1] == "" {
			continue
		}
		label := labelStyle.Render(p[0] + ":")
		b.WriteString(label + strings.Repeat(" ", width-lipgloss.Width(p[0])+1) + p[1] + "\n")
	}
	return b.String()
}

// table renders rows under a header with padded columns.
func table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	for i, h := range header {
		b.WriteString(headerStyle.Render(h) + pad(h, widths[i]))
	}
	b.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			b.WriteString(cell + pad(cell, widths[i]))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func pad(s string, width int) string {
	return strings.Repeat(" ", width-lipgloss.Width(s)+2)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func formatUnix(sec int64) string {
	if sec == 0 {
		return ""
	}
	return time.Unix(sec, 0).Format("Mon 15:04")
}
