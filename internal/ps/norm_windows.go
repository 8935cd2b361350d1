//go:build windows

package ps

import "strings"

// Windows paths and process names compare case-insensitively.
func foldCase(s string) string {
	return strings.ToLower(s)
}
