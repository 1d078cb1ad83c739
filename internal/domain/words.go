package domain

import "strings"

// FirstWord returns the first space-separated word of line without a
// leading slash.
func FirstWord(line string) string {
	line = strings.TrimSpace(line)
	if i := strings.IndexByte(line, ' '); i >= 0 {
		line = line[:i]
	}
	return strings.TrimPrefix(line, "/")
}
