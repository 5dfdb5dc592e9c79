package syncengine

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnorePatterns keep bookkeeping and server logs out of every sync.
//
//nolint:gochecknoglobals // read-only defaults
var DefaultIgnorePatterns = []string{
	InternalDir,
	InternalDir + "/**",
	"logs",
	"logs/**",
}

// IgnoreFilter excludes paths matching any of a set of glob patterns.
// It satisfies filesystem.PathFilter.
type IgnoreFilter struct {
	patterns []string
}

// NewIgnoreFilter creates a filter from doublestar patterns.
// Matching is case-insensitive and uses forward slashes.
func NewIgnoreFilter(patterns ...string) *IgnoreFilter {
	normalized := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if pattern != "" {
			normalized = append(normalized, strings.ToLower(pattern))
		}
	}

	return &IgnoreFilter{patterns: normalized}
}

// ShouldInclude returns true if no pattern matches relativePath.
// Invalid patterns match nothing.
func (f *IgnoreFilter) ShouldInclude(relativePath string) bool {
	normalizedPath := strings.ToLower(strings.ReplaceAll(relativePath, `\`, "/"))

	for _, pattern := range f.patterns {
		matched, err := doublestar.Match(pattern, normalizedPath)
		if err == nil && matched {
			return false
		}
	}

	return true
}
