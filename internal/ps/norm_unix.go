//go:build !windows

package ps

// Unix filesystems are case-sensitive; identities compare verbatim.
func foldCase(s string) string {
	return s
}
