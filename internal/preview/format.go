package preview

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatCell renders a typed sample value for display. Missing values are
// empty and numbers drop trailing zeros.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return humanize.FtoaWithDigits(val, 15)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}
