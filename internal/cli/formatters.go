// Package cli holds the helpers shared by the csvpreview commands:
// argument parsing and output formatting.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/csvpreview/internal/preview"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
)

// MaxCellWidth is how wide a table cell is rendered in text output.
const MaxCellWidth = 24

// Report is the preview of one file.
type Report struct {
	Path   string         `json:"path" yaml:"path"`
	Valid  bool           `json:"valid" yaml:"valid"`
	Result preview.Result `json:"result" yaml:"result"`
}

// NewReport wraps res for output.
func NewReport(path string, res preview.Result) Report {
	return Report{Path: path, Valid: res.Valid(), Result: res}
}

// ParseFormat validates an --output value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// OutputResults writes reports in format. Text output wraps at width.
func OutputResults(w io.Writer, format OutputFormat, reports []Report, width int) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(reports)

	case FormatYAML:
		yamlData, err := yaml.Marshal(reports)
		if err != nil {
			return err
		}
		_, err = w.Write(yamlData)
		return err

	case FormatText:
		for i, r := range reports {
			if i > 0 {
				fmt.Fprintln(w)
			}
			if err := RenderText(w, r, width); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// RenderText writes a human-readable report: a summary line, the wrapped
// errors and warnings and the sample table.
func RenderText(w io.Writer, r Report, width int) error {
	if width <= 0 {
		width = 80
	}

	renderer := lipgloss.NewRenderer(w)
	title := renderer.NewStyle().Bold(true)
	dim := renderer.NewStyle().Faint(true)
	errStyle := renderer.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle := renderer.NewStyle().Foreground(lipgloss.Color("11"))
	okStyle := renderer.NewStyle().Foreground(lipgloss.Color("10"))

	res := r.Result
	var b strings.Builder

	status := okStyle.Render("OK")
	if !r.Valid {
		status = errStyle.Render(fmt.Sprintf("%d error(s)", len(res.Errors)))
	}
	fmt.Fprintf(&b, "%s  %s\n", title.Render(r.Path), status)

	details := []string{humanize.IBytes(uint64(max(res.FileSize, 0)))}
	if res.Options.Delimiter != "" {
		details = append(details, "delimiter "+DelimiterName(res.Options.Delimiter))
	}
	if res.Encoding != "" {
		details = append(details, "encoding "+res.Encoding)
	}
	if res.Truncated {
		details = append(details, fmt.Sprintf("first %d rows", preview.MaxSampleRows))
	}
	b.WriteString(dim.Render(strings.Join(details, ", ")))
	b.WriteString("\n")

	writeList(&b, "Errors", res.Errors, errStyle, width)
	writeList(&b, "Warnings", res.Warnings, warnStyle, width)

	if len(res.Columns) > 0 {
		b.WriteString(SampleTable(renderer, res))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeList(b *strings.Builder, heading string, items []string, style lipgloss.Style, width int) {
	if len(items) == 0 {
		return
	}
	b.WriteString(style.Render(heading + ":"))
	b.WriteString("\n")
	for _, item := range items {
		wrapped := wordwrap.String(item, max(width-4, 20))
		lines := indent.String(wrapped, 4)
		b.WriteString("  - ")
		b.WriteString(strings.TrimPrefix(lines, "    "))
		b.WriteString("\n")
	}
}

// SampleTable renders the sample rows as a bordered table with cells
// truncated to MaxCellWidth.
func SampleTable(renderer *lipgloss.Renderer, res preview.Result) string {
	headers := make([]string, len(res.Columns))
	for i, col := range res.Columns {
		headers[i] = truncate.StringWithTail(col, MaxCellWidth, "…")
	}

	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = truncate.StringWithTail(preview.FormatCell(cell), MaxCellWidth, "…")
		}
		rows[i] = cells
	}

	headerStyle := renderer.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := renderer.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

// Diagnostics joins errors and warnings into plain text for the clipboard.
func Diagnostics(path string, res preview.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", path)
	for _, e := range res.Errors {
		fmt.Fprintf(&b, "error: %s\n", e)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	if len(res.Errors) == 0 && len(res.Warnings) == 0 {
		b.WriteString("no problems found\n")
	}
	return b.String()
}
