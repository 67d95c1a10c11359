// Package headers checks parsed CSV header names before they are accepted
// as the column schema of a preview.
package headers

import "strings"

// ErrorType identifies the kind of header problem.
type ErrorType string

const (
	ErrorDuplicate ErrorType = "duplicate"
	ErrorBlank     ErrorType = "blank"
)

// Error describes one header problem. Positions are 0-based column indices.
// FieldName is empty for blank errors.
type Error struct {
	Type      ErrorType `json:"type"`
	FieldName string    `json:"fieldName,omitempty"`
	Positions []int     `json:"positions"`
}

// Validate reports duplicate and blank header names.
//
// Duplicates come first, one error per name in order of first appearance,
// each listing every position the name occurs at. All blank (empty or
// whitespace-only) names are reported together as a single trailing error.
// Blank names never count as duplicates of each other.
func Validate(fields []string) []Error {
	var errs []Error

	positions := make(map[string][]int, len(fields))
	var order []string
	var blanks []int

	for i, f := range fields {
		if strings.TrimSpace(f) == "" {
			blanks = append(blanks, i)
			continue
		}
		if _, seen := positions[f]; !seen {
			order = append(order, f)
		}
		positions[f] = append(positions[f], i)
	}

	for _, name := range order {
		if pos := positions[name]; len(pos) > 1 {
			errs = append(errs, Error{Type: ErrorDuplicate, FieldName: name, Positions: pos})
		}
	}

	if len(blanks) > 0 {
		errs = append(errs, Error{Type: ErrorBlank, Positions: blanks})
	}

	return errs
}
