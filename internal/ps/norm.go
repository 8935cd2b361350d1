package ps

import "path/filepath"

// NormalizePath canonicalizes an executable path for identity comparison:
// separators are normalized, "." and ".." segments resolved, relative paths
// made absolute, and casing folded per platform rules. An empty input stays
// empty.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return foldCase(p)
}

// NormalizeName folds an executable base name per platform casing rules.
func NormalizeName(name string) string {
	return foldCase(name)
}
