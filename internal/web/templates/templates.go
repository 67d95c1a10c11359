// Package templates holds the HTML components of the preview UI.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	"github.com/JonMunkholm/csvpreview/internal/preview"
)

// PageParams drive the upload page.
type PageParams struct {
	Delimiters []preview.DelimiterOption
	Encodings  []string
	MaxBytes   string
	Selected   preview.ParseOptions
	// Result is nil until a file was previewed.
	Result *preview.Result
}

// Page renders the full upload page.
func Page(p PageParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		b.WriteString(`<title>CSV preview</title></head><body><main>`)
		b.WriteString(`<h1>Preview a CSV file</h1>`)
		b.WriteString(`<form method="post" action="/preview" enctype="multipart/form-data" hx-post="/preview" hx-target="#result" hx-encoding="multipart/form-data">`)
		b.WriteString(`<input type="file" name="file" required>`)
		fmt.Fprintf(&b, `<p class="hint">Files up to %s</p>`, templ.EscapeString(p.MaxBytes))

		b.WriteString(`<label>Delimiter <select name="delimiter"><option value="">Detect</option>`)
		for _, d := range p.Delimiters {
			selected := ""
			if d.Value == p.Selected.Delimiter {
				selected = " selected"
			}
			fmt.Fprintf(&b, `<option value="%s"%s>%s</option>`,
				templ.EscapeString(d.Value), selected, templ.EscapeString(d.Label))
		}
		b.WriteString(`</select></label>`)

		b.WriteString(`<label>Encoding <select name="encoding"><option value="">Detect</option>`)
		for _, enc := range p.Encodings {
			selected := ""
			if enc == p.Selected.Encoding {
				selected = " selected"
			}
			fmt.Fprintf(&b, `<option value="%s"%s>%s</option>`,
				templ.EscapeString(enc), selected, templ.EscapeString(enc))
		}
		b.WriteString(`</select></label>`)

		b.WriteString(`<button type="submit">Preview</button></form><section id="result">`)
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}

		if p.Result != nil {
			if err := PreviewResult(*p.Result).Render(ctx, w); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</section></main></body></html>`)
		return err
	})
}

// PreviewResult renders the diagnostics and the sample table of one run.
func PreviewResult(res preview.Result) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		fmt.Fprintf(&b, `<div class="preview"><p class="file">%s (%s)</p>`,
			templ.EscapeString(res.FileName), humanize.IBytes(uint64(max(res.FileSize, 0))))

		if len(res.Errors) > 0 {
			b.WriteString(`<ul class="errors" role="alert">`)
			for _, e := range res.Errors {
				fmt.Fprintf(&b, `<li>%s</li>`, templ.EscapeString(e))
			}
			b.WriteString(`</ul>`)
		}
		if len(res.Warnings) > 0 {
			b.WriteString(`<ul class="warnings">`)
			for _, warn := range res.Warnings {
				fmt.Fprintf(&b, `<li>%s</li>`, templ.EscapeString(warn))
			}
			b.WriteString(`</ul>`)
		}

		if len(res.Columns) > 0 {
			b.WriteString(`<table><thead><tr>`)
			for _, col := range res.Columns {
				fmt.Fprintf(&b, `<th>%s</th>`, templ.EscapeString(col))
			}
			b.WriteString(`</tr></thead><tbody>`)
			for _, row := range res.Rows {
				b.WriteString(`<tr>`)
				for _, cell := range row {
					fmt.Fprintf(&b, `<td>%s</td>`, templ.EscapeString(preview.FormatCell(cell)))
				}
				b.WriteString(`</tr>`)
			}
			b.WriteString(`</tbody></table>`)
		}

		if res.Truncated {
			fmt.Fprintf(&b, `<p class="hint">Showing the first %d rows</p>`, preview.MaxSampleRows)
		}
		b.WriteString(`</div>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

// ErrorAlert renders an error message with its support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="alert alert-error" role="alert"><p>%s</p><p>%s</p><small>Code: %s</small></div>`,
			templ.EscapeString(message), templ.EscapeString(action), templ.EscapeString(code))
		return err
	})
}
