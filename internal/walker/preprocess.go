package walker

import (
	"regexp"
	"strings"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Preprocess strips // line comments and empty lines from source while
// keeping the remaining structure. Preprocessor directives such as #region
// and #define are untouched.
func Preprocess(code string) string {
	lines := strings.Split(code, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "//") {
			continue
		}
		if i := commentStart(line); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return blankRuns.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")
}

// commentStart returns the index of the first "//" outside a string
// literal, or -1
func commentStart(line string) int {
	offset := 0
	for {
		i := strings.Index(line[offset:], "//")
		if i < 0 {
			return -1
		}
		i += offset
		if !inString(line[:i]) {
			return i
		}
		offset = i + 2
	}
}

// inString reports whether prefix leaves an unterminated double-quoted
// string, so a following "//" belongs to a literal such as a URL
func inString(prefix string) bool {
	open := false
	escaped := false
	for _, r := range prefix {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			open = !open
		}
	}
	return open
}
