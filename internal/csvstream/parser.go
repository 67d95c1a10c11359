// Package csvstream is a row-at-a-time CSV reader with a callback API.
//
// It sits on top of encoding/csv and adds the conveniences a preview needs:
// header rows mapped to named fields, dynamic typing of cells, delimiter and
// charset detection, per-row error reporting that does not stop the stream,
// and early abort from inside the row callback.
//
//	err := csvstream.Parse(ctx, f, csvstream.Config{
//	    Header:        true,
//	    DynamicTyping: true,
//	    Step: func(res csvstream.Results, h *csvstream.Handle) {
//	        if tooMany { h.Abort() }
//	    },
//	    Complete: func() { ... },
//	})
package csvstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"
)

// ErrInvalidDelimiter is returned when Config.Delimiter cannot be used to
// split fields.
var ErrInvalidDelimiter = errors.New("invalid delimiter")

// ExtraFieldsKey holds the values of fields beyond the header width.
const ExtraFieldsKey = "__parsed_extra"

// DefaultSniffBytes is how much decoded input delimiter detection reads ahead.
const DefaultSniffBytes = 64 * 1024

// ErrorType groups row errors by cause.
type ErrorType string

const (
	ErrorQuotes        ErrorType = "Quotes"
	ErrorDelimiter     ErrorType = "Delimiter"
	ErrorFieldMismatch ErrorType = "FieldMismatch"
)

// Row error codes.
const (
	CodeMissingQuotes         = "MissingQuotes"
	CodeInvalidQuotes         = "InvalidQuotes"
	CodeUndetectableDelimiter = "UndetectableDelimiter"
	CodeTooFewFields          = "TooFewFields"
	CodeTooManyFields         = "TooManyFields"
)

// Row is one parsed data record. With Config.Header set, keys are the
// header names; otherwise keys are 0-based column indices.
type Row map[string]any

// RowError is a problem with a single record. Parsing continues after it.
type RowError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Row     int       `json:"row"` // 0-based data row index
}

// Meta describes the parse as seen so far.
type Meta struct {
	Delimiter string   `json:"delimiter"`
	Encoding  string   `json:"encoding"`
	Fields    []string `json:"fields,omitempty"`
	Cursor    int64    `json:"cursor"` // raw input bytes consumed
}

// Results is passed to the step callback once per data record.
type Results struct {
	Data   []Row
	Errors []RowError
	Meta   Meta
}

// Handle lets the step callback stop the parse.
type Handle struct {
	aborted bool
}

// Abort stops the parse once the current step callback returns.
func (h *Handle) Abort() {
	h.aborted = true
}

// Aborted reports whether Abort was called.
func (h *Handle) Aborted() bool {
	return h.aborted
}

// Config controls a single parse.
type Config struct {
	// Header treats the first record as field names.
	Header bool
	// DynamicTyping converts numeric and boolean looking cells.
	DynamicTyping bool
	// SkipEmptyLines drops records that consist of a single empty field.
	SkipEmptyLines bool
	// Delimiter is a single character; empty means detect it.
	Delimiter string
	// Encoding names the input charset; empty means detect it.
	Encoding string

	// Step is called for every data record, or for a record that failed to
	// parse (with empty Data and the error in Errors).
	Step func(Results, *Handle)
	// Complete is called once after the last record. It is not called when
	// the parse is aborted, cancelled, or fails.
	Complete func()
}

// Parser reads CSV input according to a Config.
type Parser struct {
	// SniffBytes bounds the look-ahead used for delimiter detection.
	SniffBytes int
}

// New returns a Parser with default settings.
func New() *Parser {
	return &Parser{SniffBytes: DefaultSniffBytes}
}

// Parse is shorthand for New().Parse.
func Parse(ctx context.Context, r io.Reader, cfg Config) error {
	return New().Parse(ctx, r, cfg)
}

// Parse streams r through cfg.Step. It returns nil after the last record or
// after an abort, ctx.Err() when ctx is cancelled between records, and a
// wrapped error when the input cannot be read.
func (p *Parser) Parse(ctx context.Context, r io.Reader, cfg Config) error {
	if cfg.Delimiter != "" {
		if err := validateDelimiter(cfg.Delimiter); err != nil {
			return err
		}
	}

	in, encName, counter, err := newInput(r, cfg.Encoding)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}

	sniff := p.SniffBytes
	if sniff <= 0 {
		sniff = DefaultSniffBytes
	}
	br := bufio.NewReaderSize(in, sniff)

	meta := Meta{Delimiter: cfg.Delimiter, Encoding: encName}
	var pending []RowError

	if meta.Delimiter == "" {
		sample, _ := br.Peek(sniff)
		if len(sample) == sniff {
			if i := bytes.LastIndexByte(sample, '\n'); i > 0 {
				sample = sample[:i+1]
			}
		}
		delim, ok := GuessDelimiter(sample, cfg.SkipEmptyLines)
		meta.Delimiter = delim
		if !ok {
			pending = append(pending, RowError{
				Type:    ErrorDelimiter,
				Code:    CodeUndetectableDelimiter,
				Message: fmt.Sprintf("Unable to auto-detect delimiting character; defaulted to '%s'", DefaultDelimiter),
			})
		}
	}

	tap := &recordTap{r: br}
	cr := csv.NewReader(tap)
	cr.Comma, _ = utf8.DecodeRuneInString(meta.Delimiter)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	handle := &Handle{}
	row := 0
	// headerErrs are problems with the header record, reported with the
	// first data record or on their own when there is none.
	var headerErrs []RowError

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := cr.InputOffset()
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}

		var rowErrs []RowError
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return fmt.Errorf("read csv: %w", err)
			}
			rowErrs = append(rowErrs, quoteError(pe, row))
		}
		end := cr.InputOffset()
		if unterminatedQuote(tap.slice(start, end), cr.Comma) {
			rowErrs = append(rowErrs, RowError{Type: ErrorQuotes, Code: CodeMissingQuotes, Message: "Quoted field unterminated", Row: row})
		}
		tap.discard(end)

		if len(rowErrs) == 0 && cfg.SkipEmptyLines && isEmptyRecord(rec) {
			continue
		}
		if cfg.Header && meta.Fields == nil {
			if rec == nil {
				rec = []string{}
			}
			meta.Fields = rec
			headerErrs = rowErrs
			continue
		}

		res := Results{Errors: append(append(pending, headerErrs...), rowErrs...)}
		pending, headerErrs = nil, nil

		if rec != nil {
			data, mismatch := buildRow(rec, meta.Fields, cfg, row)
			res.Data = []Row{data}
			res.Errors = append(res.Errors, mismatch...)
		}

		meta.Cursor = counter.n
		res.Meta = meta

		if cfg.Step != nil {
			cfg.Step(res, handle)
		}
		row++

		if handle.aborted {
			return nil
		}
	}

	if len(headerErrs) > 0 && cfg.Step != nil {
		meta.Cursor = counter.n
		cfg.Step(Results{Errors: append(pending, headerErrs...), Meta: meta}, handle)
		if handle.aborted {
			return nil
		}
	}

	if cfg.Complete != nil {
		cfg.Complete()
	}
	return nil
}

// buildRow maps a record onto the header fields and reports a width mismatch.
func buildRow(rec, fields []string, cfg Config, row int) (Row, []RowError) {
	value := func(s string) any {
		if cfg.DynamicTyping {
			return convertValue(s)
		}
		return s
	}

	out := make(Row, len(rec))

	if !cfg.Header {
		for i, v := range rec {
			out[strconv.Itoa(i)] = value(v)
		}
		return out, nil
	}

	for i, v := range rec {
		if i >= len(fields) {
			break
		}
		out[fields[i]] = value(v)
	}

	var errs []RowError
	switch {
	case len(rec) > len(fields):
		extra := make([]any, 0, len(rec)-len(fields))
		for _, v := range rec[len(fields):] {
			extra = append(extra, value(v))
		}
		out[ExtraFieldsKey] = extra
		errs = append(errs, RowError{
			Type:    ErrorFieldMismatch,
			Code:    CodeTooManyFields,
			Message: fmt.Sprintf("Too many fields: expected %d fields but parsed %d", len(fields), len(rec)),
			Row:     row,
		})
	case len(rec) < len(fields):
		errs = append(errs, RowError{
			Type:    ErrorFieldMismatch,
			Code:    CodeTooFewFields,
			Message: fmt.Sprintf("Too few fields: expected %d fields but parsed %d", len(fields), len(rec)),
			Row:     row,
		})
	}

	return out, errs
}

func quoteError(pe *csv.ParseError, row int) RowError {
	switch {
	case errors.Is(pe.Err, csv.ErrQuote):
		return RowError{Type: ErrorQuotes, Code: CodeMissingQuotes, Message: "Quoted field unterminated", Row: row}
	case errors.Is(pe.Err, csv.ErrBareQuote):
		return RowError{Type: ErrorQuotes, Code: CodeInvalidQuotes, Message: "Trailing quote on quoted field is malformed", Row: row}
	default:
		return RowError{Type: ErrorQuotes, Code: CodeInvalidQuotes, Message: pe.Err.Error(), Row: row}
	}
}

// isEmptyRecord matches a line with nothing on it. Lines holding only
// delimiters or whitespace are data.
func isEmptyRecord(rec []string) bool {
	return len(rec) == 1 && rec[0] == ""
}

// validateDelimiter applies the same rules encoding/csv does for Comma.
func validateDelimiter(d string) error {
	if utf8.RuneCountInString(d) != 1 {
		return fmt.Errorf("%w: %q must be a single character", ErrInvalidDelimiter, d)
	}
	r, _ := utf8.DecodeRuneInString(d)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return fmt.Errorf("%w: %q cannot separate fields", ErrInvalidDelimiter, d)
	}
	return nil
}
