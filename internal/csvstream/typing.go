package csvstream

import (
	"regexp"
	"strconv"
	"strings"
)

// floatPattern matches text that dynamic typing turns into a number.
var floatPattern = regexp.MustCompile(`(?i)^\s*-?(\d*\.?\d+|\d+\.?\d*)(e[-+]?\d+)?\s*$`)

// convertValue applies dynamic typing to a single cell: "true"/"TRUE" and
// "false"/"FALSE" become booleans, numeric-looking text becomes float64,
// everything else is returned unchanged.
func convertValue(v string) any {
	switch v {
	case "true", "TRUE":
		return true
	case "false", "FALSE":
		return false
	}
	if floatPattern.MatchString(v) {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return v
}
