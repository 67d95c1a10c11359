package csvstream

import (
	"bytes"
	"encoding/csv"
	"io"
	"math"
)

// DefaultDelimiter is used when no delimiter is configured and detection fails.
const DefaultDelimiter = ","

// Delimiter guessing looks at this many records of the input.
const guessRows = 10

// Record and unit separators are accepted as delimiters by some exporters.
const (
	recordSep = "\x1e"
	unitSep   = "\x1f"
)

// guessCandidates is the order delimiters are tried in. On equal
// consistency the candidate producing more fields wins, then the earlier one.
var guessCandidates = []string{",", "\t", "|", ";", recordSep, unitSep}

// GuessDelimiter picks the candidate delimiter that splits the first rows of
// sample into the most consistent number of fields. A candidate must yield
// close to two fields per row on average to be considered. ok is false when
// no candidate qualifies, in which case DefaultDelimiter is returned.
func GuessDelimiter(sample []byte, skipEmptyLines bool) (delimiter string, ok bool) {
	best := ""
	bestDelta := math.MaxInt
	bestAvg := 0.0

	for _, delim := range guessCandidates {
		delta, avg := scoreDelimiter(sample, []rune(delim)[0], skipEmptyLines)
		if avg <= 1.99 {
			continue
		}
		if delta < bestDelta || (delta == bestDelta && avg > bestAvg) {
			best, bestDelta, bestAvg = delim, delta, avg
		}
	}

	if best == "" {
		return DefaultDelimiter, false
	}
	return best, true
}

// scoreDelimiter returns the summed change in field count between
// consecutive rows and the average field count per row.
func scoreDelimiter(sample []byte, comma rune, skipEmptyLines bool) (int, float64) {
	r := csv.NewReader(bytes.NewReader(sample))
	r.Comma = comma
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	delta, total, rows := 0, 0, 0
	prev := -1

	for rows < guessRows {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A sample cut mid-record can end in a broken quote; score what we have.
			break
		}
		if skipEmptyLines && isEmptyRecord(rec) {
			continue
		}
		rows++
		n := len(rec)
		total += n

		if prev < 0 {
			prev = n
			continue
		}
		if n > 1 {
			delta += abs(n - prev)
			prev = n
		}
	}

	if rows == 0 {
		return 0, 0
	}
	return delta, float64(total) / float64(rows)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
