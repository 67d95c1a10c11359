package preview

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/JonMunkholm/csvpreview/internal/csvstream"
	"github.com/JonMunkholm/csvpreview/internal/headers"
	"github.com/JonMunkholm/csvpreview/internal/source"
)

func compute(t *testing.T, content string, opts ParseOptions, deps Deps) Result {
	t.Helper()
	res, err := Compute(context.Background(), source.Bytes("test.csv", []byte(content)), opts, deps)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return res
}

func TestCompute_WellFormed(t *testing.T) {
	res := compute(t, "name,age\nalice,30\nbob,41\n", ParseOptions{}, Deps{})

	if want := []string{"name", "age"}; !reflect.DeepEqual(res.Columns, want) {
		t.Errorf("Columns = %v, want %v", res.Columns, want)
	}
	if want := [][]any{{"alice", 30.0}, {"bob", 41.0}}; !reflect.DeepEqual(res.Rows, want) {
		t.Errorf("Rows = %v, want %v", res.Rows, want)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", res.Warnings)
	}
	wantSamples := []csvstream.Row{
		{"name": "alice", "age": 30.0},
		{"name": "bob", "age": 41.0},
	}
	if !reflect.DeepEqual(res.Samples, wantSamples) {
		t.Errorf("Samples = %v, want %v", res.Samples, wantSamples)
	}
	if !res.Valid() {
		t.Error("Valid() = false, want true")
	}
	if res.Truncated {
		t.Error("Truncated = true, want false")
	}
	if res.Options.Delimiter != "," {
		t.Errorf("Options.Delimiter = %q, want %q", res.Options.Delimiter, ",")
	}
}

func TestCompute_Oversized(t *testing.T) {
	content := "name,age\nalice,30\n"
	res := compute(t, content, ParseOptions{}, Deps{MaxBytes: 10})

	want := []string{fmt.Sprintf("File size (%d bytes) is greater than the configured limit of 10 bytes", len(content))}
	if !reflect.DeepEqual(res.Errors, want) {
		t.Errorf("Errors = %v, want %v", res.Errors, want)
	}
	if res.Rows != nil || res.Columns != nil || res.Samples != nil {
		t.Errorf("Rows/Columns/Samples = %v/%v/%v, want all unset", res.Rows, res.Columns, res.Samples)
	}
}

func TestCompute_AtSizeLimit(t *testing.T) {
	content := "a,b\n1,2\n"
	res := compute(t, content, ParseOptions{}, Deps{MaxBytes: int64(len(content))})
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none at exactly the limit", res.Errors)
	}
}

func TestCompute_RowLimit(t *testing.T) {
	var b strings.Builder
	b.WriteString("id,value\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "%d,v%d\n", i, i)
	}

	res := compute(t, b.String(), ParseOptions{}, Deps{})

	if len(res.Rows) != MaxSampleRows {
		t.Errorf("len(Rows) = %d, want %d", len(res.Rows), MaxSampleRows)
	}
	if len(res.Samples) != MaxSampleRows {
		t.Errorf("len(Samples) = %d, want %d", len(res.Samples), MaxSampleRows)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if got := res.Samples[MaxSampleRows-1]["id"]; got != 9.0 {
		t.Errorf("last sample id = %v, want 9", got)
	}
}

func TestCompute_ColumnLimit(t *testing.T) {
	const n = 25
	header := make([]string, n)
	row := make([]string, n)
	for i := range header {
		header[i] = fmt.Sprintf("c%d", i)
		row[i] = fmt.Sprintf("x%d", i)
	}
	content := strings.Join(header, ",") + "\n" + strings.Join(row, ",") + "\n" + strings.Join(row, ",") + "\n"

	res := compute(t, content, ParseOptions{}, Deps{})

	if len(res.Columns) != MaxSampleColumns {
		t.Errorf("len(Columns) = %d, want %d", len(res.Columns), MaxSampleColumns)
	}
	if want := []string{"Preview truncated to 20 columns"}; !reflect.DeepEqual(res.Warnings, want) {
		t.Errorf("Warnings = %v, want %v", res.Warnings, want)
	}
	for i, r := range res.Rows {
		if len(r) != MaxSampleColumns {
			t.Errorf("row %d has %d cells, want %d", i, len(r), MaxSampleColumns)
		}
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}
	if got := len(res.Samples[0]); got != n {
		t.Errorf("sample has %d fields, want all %d", got, n)
	}
}

func TestCompute_HeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "duplicate",
			content: "a,a,b\n1,2,3\n",
			want:    `Columns at positions [0,1] have duplicate name "a"`,
		},
		{
			name:    "duplicate with backslash",
			content: "x\\y,x\\y\n1,2\n",
			want:    `Columns at positions [0,1] have duplicate name "x\y"`,
		},
		{
			name:    "duplicate with bare quote",
			content: "a\"b,a\"b,c\n1,2,3\n",
			want:    `Columns at positions [0,1] have duplicate name "a"b"`,
		},
		{
			name:    "blank",
			content: "a,,b\n1,2,3\n",
			want:    "Columns at positions [1] must not be blank",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := compute(t, tt.content, ParseOptions{}, Deps{})
			found := false
			for _, e := range res.Errors {
				if e == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("Errors = %v, want to contain %q", res.Errors, tt.want)
			}
			if res.Samples != nil {
				t.Errorf("Samples = %v, want nil when errors exist", res.Samples)
			}
			if len(res.Rows) != 1 {
				t.Errorf("len(Rows) = %d, want 1 (preview still shown)", len(res.Rows))
			}
		})
	}
}

func TestCompute_BareQuoteInData(t *testing.T) {
	res := compute(t, "item,size\npipe,12\" long\nbolt,3\n", ParseOptions{}, Deps{})

	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}
	if want := []string{"item", "size"}; !reflect.DeepEqual(res.Columns, want) {
		t.Errorf("Columns = %v, want %v", res.Columns, want)
	}
	if want := [][]any{{"pipe", `12" long`}, {"bolt", 3.0}}; !reflect.DeepEqual(res.Rows, want) {
		t.Errorf("Rows = %v, want %v", res.Rows, want)
	}
	if len(res.Samples) != 2 {
		t.Errorf("Samples = %v, want 2 rows", res.Samples)
	}
}

func TestCompute_UnterminatedQuoteInHeader(t *testing.T) {
	res := compute(t, "\"a,b\n1,2\n", ParseOptions{Delimiter: ","}, Deps{})

	want := []string{"Quotes at line 2 - Quoted field unterminated"}
	if !reflect.DeepEqual(res.Errors, want) {
		t.Errorf("Errors = %v, want %v", res.Errors, want)
	}
	if len(res.Rows) != 0 {
		t.Errorf("Rows = %v, want none: the data row belongs to the broken header", res.Rows)
	}
	if res.Samples != nil {
		t.Errorf("Samples = %v, want nil", res.Samples)
	}
}

func TestCompute_DecompressedLimit(t *testing.T) {
	var raw bytes.Buffer
	raw.WriteString("a,b\n")
	raw.WriteString(strings.Repeat("x", 1<<20))
	raw.WriteString(",1\n")

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write(raw.Bytes())
	zw.Close()

	const limit = 64 << 10
	if gz.Len() > limit {
		t.Fatalf("compressed size %d is over the limit; test input too random", gz.Len())
	}

	res, err := Compute(context.Background(), source.Bytes("big.csv.gz", gz.Bytes()), ParseOptions{}, Deps{MaxBytes: limit})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	want := []string{fmt.Sprintf("Decompressed content is greater than the configured limit of %d bytes", limit)}
	if !reflect.DeepEqual(res.Errors, want) {
		t.Errorf("Errors = %v, want %v", res.Errors, want)
	}
	if res.Samples != nil {
		t.Errorf("Samples = %v, want nil", res.Samples)
	}
	for _, row := range res.Rows {
		for _, cell := range row {
			if s, ok := cell.(string); ok && len(s) > limit {
				t.Errorf("cell of %d bytes read past the limit", len(s))
			}
		}
	}
}

func TestCompute_CompressedWithinLimit(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte("a,b\n1,2\n"))
	zw.Close()

	res, err := Compute(context.Background(), source.Bytes("small.csv.gz", gz.Bytes()), ParseOptions{}, Deps{MaxBytes: 1 << 10})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v, want none", res.Errors)
	}
	if want := [][]any{{1.0, 2.0}}; !reflect.DeepEqual(res.Rows, want) {
		t.Errorf("Rows = %v, want %v", res.Rows, want)
	}
}

func TestLimitedReader(t *testing.T) {
	tests := []struct {
		input   string
		limit   int64
		want    string
		wantErr error
	}{
		{"abc", 3, "abc", nil},
		{"abc", 5, "abc", nil},
		{"abcd", 3, "abc", ErrContentTooLarge},
	}
	for _, tt := range tests {
		got, err := io.ReadAll(&limitedReader{r: strings.NewReader(tt.input), remaining: tt.limit})
		if string(got) != tt.want || !errors.Is(err, tt.wantErr) {
			t.Errorf("ReadAll(%q, limit %d) = %q, %v; want %q, %v", tt.input, tt.limit, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestCompute_RowErrors(t *testing.T) {
	res := compute(t, "a,b\n1,2\n3\n", ParseOptions{Delimiter: ","}, Deps{})

	want := []string{"FieldMismatch at line 3 - Too few fields: expected 2 fields but parsed 1"}
	if !reflect.DeepEqual(res.Errors, want) {
		t.Errorf("Errors = %v, want %v", res.Errors, want)
	}
	if wantRows := [][]any{{1.0, 2.0}, {3.0, nil}}; !reflect.DeepEqual(res.Rows, wantRows) {
		t.Errorf("Rows = %v, want %v", res.Rows, wantRows)
	}
	if res.Samples != nil {
		t.Errorf("Samples = %v, want nil", res.Samples)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	content := "a;b;c\n1;2;3\nx;y\n"
	first := compute(t, content, ParseOptions{}, Deps{})
	second := compute(t, content, ParseOptions{}, Deps{})

	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestCompute_DelimiterDetection(t *testing.T) {
	res := compute(t, "a;b\n1;2\n", ParseOptions{}, Deps{})
	if res.Options.Delimiter != ";" {
		t.Errorf("Options.Delimiter = %q, want %q", res.Options.Delimiter, ";")
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(res.Columns, want) {
		t.Errorf("Columns = %v, want %v", res.Columns, want)
	}
}

func TestCompute_ExplicitDelimiterKept(t *testing.T) {
	res := compute(t, "a;b\n1;2\n", ParseOptions{Delimiter: ","}, Deps{})
	if res.Options.Delimiter != "," {
		t.Errorf("Options.Delimiter = %q, want explicit %q", res.Options.Delimiter, ",")
	}
	if want := []string{"a;b"}; !reflect.DeepEqual(res.Columns, want) {
		t.Errorf("Columns = %v, want %v", res.Columns, want)
	}
}

func TestCompute_InvalidDelimiter(t *testing.T) {
	res := compute(t, "a,b\n1,2\n", ParseOptions{Delimiter: "::"}, Deps{})
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "Delimiter - ") {
		t.Errorf("Errors = %v, want one delimiter error", res.Errors)
	}
	if res.Samples != nil {
		t.Errorf("Samples = %v, want nil", res.Samples)
	}
}

func TestCompute_NoFile(t *testing.T) {
	if _, err := Compute(context.Background(), nil, ParseOptions{}, Deps{}); !errors.Is(err, ErrNoFile) {
		t.Errorf("err = %v, want ErrNoFile", err)
	}
}

func TestCompute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Compute(ctx, source.Bytes("x.csv", []byte("a,b\n1,2\n")), ParseOptions{}, Deps{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCompute_ValidatorCalledOnce(t *testing.T) {
	var calls [][]string
	deps := Deps{
		Validate: func(fields []string) []headers.Error {
			calls = append(calls, fields)
			return nil
		},
	}

	compute(t, "x,y\n1,2\n3,4\n5,6\n", ParseOptions{}, deps)

	if want := [][]string{{"x", "y"}}; !reflect.DeepEqual(calls, want) {
		t.Errorf("validator calls = %v, want %v", calls, want)
	}
}

func TestJoinPositions(t *testing.T) {
	tests := []struct {
		in   []int
		want string
	}{
		{nil, ""},
		{[]int{3}, "3"},
		{[]int{0, 1, 5}, "0,1,5"},
	}
	for _, tt := range tests {
		if got := joinPositions(tt.in); got != tt.want {
			t.Errorf("joinPositions(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{30.0, "30"},
		{1.5, "1.5"},
		{-0.25, "-0.25"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := FormatCell(tt.in); got != tt.want {
			t.Errorf("FormatCell(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
