package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/JonMunkholm/csvpreview/internal/preview"
)

// ParseDelimiter accepts a delimiter option label ("comma", "tab", ...),
// an escape such as `\t`, or a single character. Empty means detect.
func ParseDelimiter(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	for _, opt := range preview.DelimiterOptions() {
		if strings.EqualFold(s, opt.Label) {
			return opt.Value, nil
		}
	}
	if strings.HasPrefix(s, `\`) {
		if unquoted, err := strconv.Unquote(`"` + s + `"`); err == nil {
			s = unquoted
		}
	}
	if utf8.RuneCountInString(s) != 1 {
		return "", fmt.Errorf("invalid delimiter %q: use a single character or one of comma, tab, space, semicolon, pipe", s)
	}
	return s, nil
}

// DelimiterName returns the option label for d, or d quoted.
func DelimiterName(d string) string {
	for _, opt := range preview.DelimiterOptions() {
		if opt.Value == d {
			return opt.Label
		}
	}
	return strconv.Quote(d)
}

// ExpandPaths resolves each argument to files. Arguments with glob
// metacharacters are matched with doublestar ("data/**/*.csv"); a pattern
// that matches nothing is an error. Duplicates are dropped and the order
// of first appearance kept.
func ExpandPaths(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, arg := range args {
		if !strings.ContainsAny(arg, "*?[{") {
			add(arg)
			continue
		}

		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("no files given")
	}
	return paths, nil
}

// Width returns the terminal width from $COLUMNS, or fallback.
func Width(fallback int) int {
	if n, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && n > 0 {
		return n
	}
	return fallback
}
