// Package preview builds the bounded sample a user sees before importing a
// CSV file.
//
// Compute runs one sampling pass: it reads at most MaxSampleRows data rows
// through a streaming parser, keeps the first MaxSampleColumns header names,
// validates those names and collects every problem as a user-facing string.
// The full structured rows are returned as Samples only when no error was
// recorded, so callers can gate ingestion on a clean sample.
//
// Previewer wraps Compute with state: it re-runs on file or option changes,
// debounces bursts of changes and drops results from superseded runs.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/JonMunkholm/csvpreview/internal/csvstream"
	"github.com/JonMunkholm/csvpreview/internal/headers"
	"github.com/JonMunkholm/csvpreview/internal/source"
)

// Sample limits.
const (
	MaxSampleRows    = 10
	MaxSampleColumns = 20
)

// DefaultMaxBytes is the size limit used when Deps.MaxBytes is not set.
const DefaultMaxBytes int64 = 1 << 30

// ErrNoFile is returned by Compute when there is nothing to preview.
var ErrNoFile = errors.New("no file selected")

// ErrContentTooLarge is returned by reads past the size limit, which only
// compressed files can reach after their stored size passed the check.
var ErrContentTooLarge = errors.New("content exceeds size limit")

// ParseOptions are the user-adjustable parser settings. An empty Delimiter
// asks the parser to detect one; an empty Encoding likewise.
type ParseOptions struct {
	Delimiter string `json:"delimiter"`
	Encoding  string `json:"encoding,omitempty"`
}

// DelimiterOption is one entry of the delimiter picker.
type DelimiterOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var delimiterOptions = []DelimiterOption{
	{Label: "comma", Value: ","},
	{Label: "tab", Value: "\t"},
	{Label: "space", Value: " "},
	{Label: "semicolon", Value: ";"},
	{Label: "pipe", Value: "|"},
}

// DelimiterOptions returns the delimiters offered to the user.
func DelimiterOptions() []DelimiterOption {
	out := make([]DelimiterOption, len(delimiterOptions))
	copy(out, delimiterOptions)
	return out
}

// Parser is the streaming CSV capability a preview depends on.
type Parser interface {
	Parse(ctx context.Context, r io.Reader, cfg csvstream.Config) error
}

// Deps are the collaborators and limits of a preview run.
type Deps struct {
	MaxBytes int64
	Validate func([]string) []headers.Error
	Parser   Parser
	Logger   *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.MaxBytes <= 0 {
		d.MaxBytes = DefaultMaxBytes
	}
	if d.Validate == nil {
		d.Validate = headers.Validate
	}
	if d.Parser == nil {
		d.Parser = csvstream.New()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// Result is the outcome of one preview run.
type Result struct {
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`

	// Options are the options the run used, with the detected delimiter
	// filled in when none was given.
	Options  ParseOptions `json:"options"`
	Encoding string       `json:"encoding,omitempty"`

	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`

	// Samples holds every field of every sampled row. It is nil whenever
	// Errors is not empty.
	Samples []csvstream.Row `json:"samples"`

	// Truncated is set when the file has more rows than the sample holds.
	Truncated bool `json:"truncated"`
}

// Valid reports whether the sample is clean enough to import.
func (r Result) Valid() bool {
	return len(r.Errors) == 0 && r.Samples != nil
}

// Compute runs one preview pass over file. It returns ErrNoFile for a nil
// file and ctx.Err() when cancelled; every other problem is reported in
// Result.Errors.
func Compute(ctx context.Context, file source.File, opts ParseOptions, deps Deps) (Result, error) {
	if file == nil {
		return Result{}, ErrNoFile
	}
	deps = deps.withDefaults()

	res := Result{
		FileName: file.Name(),
		FileSize: file.Size(),
		Options:  opts,
		Errors:   []string{},
		Warnings: []string{},
	}

	if file.Size() > deps.MaxBytes {
		res.Errors = append(res.Errors, fmt.Sprintf(
			"File size (%d bytes) is greater than the configured limit of %d bytes",
			file.Size(), deps.MaxBytes,
		))
		return res, nil
	}

	rc, err := file.Open()
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Unable to read file - %v", err))
		return res, nil
	}
	defer rc.Close()
	in := &limitedReader{r: rc, remaining: deps.MaxBytes}

	var (
		row       = 1
		rows      = [][]any{}
		data      = []csvstream.Row{}
		completed bool
	)

	complete := func() {
		if completed {
			return
		}
		completed = true
		res.Rows = rows
		if len(res.Errors) == 0 {
			res.Samples = data
		} else {
			res.Samples = nil
		}
	}

	cfg := csvstream.Config{
		Header:         true,
		DynamicTyping:  true,
		SkipEmptyLines: true,
	}
	if opts.Delimiter != "" {
		cfg.Delimiter = opts.Delimiter
	}
	if opts.Encoding != "" {
		cfg.Encoding = opts.Encoding
	}

	cfg.Step = func(results csvstream.Results, h *csvstream.Handle) {
		if row > MaxSampleRows {
			h.Abort()
			res.Truncated = true
			complete()
			return
		}

		if row == 1 {
			fields := results.Meta.Fields
			for _, e := range deps.Validate(fields) {
				res.Errors = append(res.Errors, formatHeaderError(e))
			}
			if len(fields) > MaxSampleColumns {
				res.Warnings = append(res.Warnings, fmt.Sprintf("Preview truncated to %d columns", MaxSampleColumns))
			}
			res.Columns = append([]string{}, fields[:min(len(fields), MaxSampleColumns)]...)
			if res.Options.Delimiter == "" {
				res.Options.Delimiter = results.Meta.Delimiter
			}
			res.Encoding = results.Meta.Encoding
		}

		for _, e := range results.Errors {
			res.Errors = append(res.Errors, fmt.Sprintf("%s at line %d - %s", e.Type, row+1, e.Message))
		}

		for _, record := range results.Data {
			data = append(data, record)
			cells := make([]any, len(res.Columns))
			for i, col := range res.Columns {
				cells[i] = record[col]
			}
			rows = append(rows, cells)
		}

		row++
	}
	cfg.Complete = complete

	if err := deps.Parser.Parse(ctx, in, cfg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		deps.Logger.Warn("preview parse failed", "file", file.Name(), "error", err)
		if errors.Is(err, ErrContentTooLarge) {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"Decompressed content is greater than the configured limit of %d bytes", deps.MaxBytes,
			))
		} else {
			res.Errors = append(res.Errors, parseFailure(err))
		}
		completed = false
		complete()
		return res, nil
	}

	// A parser that returns without calling Complete still publishes rows.
	complete()
	return res, nil
}

func formatHeaderError(e headers.Error) string {
	switch e.Type {
	case headers.ErrorDuplicate:
		return fmt.Sprintf("Columns at positions [%s] have duplicate name \"%s\"", joinPositions(e.Positions), e.FieldName)
	case headers.ErrorBlank:
		return fmt.Sprintf("Columns at positions [%s] must not be blank", joinPositions(e.Positions))
	default:
		return fmt.Sprintf("Columns at positions [%s] are invalid", joinPositions(e.Positions))
	}
}

// joinPositions renders indices the way the messages show them: "0,1".
func joinPositions(positions []int) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func parseFailure(err error) string {
	switch {
	case errors.Is(err, csvstream.ErrInvalidDelimiter):
		return fmt.Sprintf("Delimiter - %v", err)
	case errors.Is(err, csvstream.ErrUnsupportedEncoding):
		return fmt.Sprintf("Encoding - %v", err)
	default:
		return fmt.Sprintf("Unable to read file - %v", err)
	}
}

// limitedReader reads at most remaining bytes and fails with
// ErrContentTooLarge if the input goes on.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var probe [1]byte
		n, err := l.r.Read(probe[:])
		if n > 0 {
			return 0, ErrContentTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
