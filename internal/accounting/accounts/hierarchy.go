package accounts

import (
	"slices"
	"strings"
)

// PathSeparator joins ancestor codes in an account path.
const PathSeparator = "~"

// BuildPath joins segments into a path. Empty segments are dropped.
func BuildPath(segments ...string) string {
	kept := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, PathSeparator)
}

// Segments splits a path. An empty or malformed path, one with a blank
// segment, has no segments.
func Segments(path string) []string {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	segments := strings.Split(path, PathSeparator)
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			return nil
		}
	}
	return segments
}

// Depth returns the number of segments in path, 0 when empty.
func Depth(path string) int {
	return len(Segments(path))
}

// ParentCode returns the second-to-last segment. Paths with fewer than two
// segments describe a root and have no parent.
func ParentCode(path string) (string, bool) {
	segments := Segments(path)
	if len(segments) < 2 {
		return "", false
	}
	return segments[len(segments)-2], true
}

// IsDescendant reports whether path lies strictly below ancestorPath.
func IsDescendant(path, ancestorPath string) bool {
	if ancestorPath == "" || path == ancestorPath {
		return false
	}
	return strings.HasPrefix(path, ancestorPath+PathSeparator)
}

// ComparePath orders paths segment by segment so that every account sorts
// directly before its descendants.
func ComparePath(a, b string) int {
	return slices.Compare(Segments(a), Segments(b))
}
