package errors

import "strings"

// PatternMatcher maps an error message to a category.
type PatternMatcher interface {
	Match(errorMsg string) ErrorCategory
}

// NewPatternMatcher returns the default matcher. Rules are checked in order
// so that, for example, an SSH "permission denied (publickey)" is reported as
// an authentication problem rather than a file permission one.
func NewPatternMatcher() PatternMatcher {
	return &patternMatcher{
		rules: []rule{
			{CategoryAuth, []string{
				"authentication failed",
				"unable to authenticate",
				"login incorrect",
				"530 ",
				"permission denied (publickey",
			}},
			{CategoryConfig, []string{
				"missing remote configuration",
				"invalid remote url",
				"invalid configuration",
				"invalid memory size",
			}},
			{CategoryConflict, []string{
				"already hosted",
				"already in progress",
				"already running",
			}},
			{CategoryNetwork, []string{
				"connection refused",
				"connection reset",
				"connection lost",
				"i/o timeout",
				"no such host",
				"network is unreachable",
				"broken pipe",
				"remote operation failed",
			}},
			{CategoryDiskSpace, []string{
				"no space left on device",
				"disk full",
				"quota exceeded",
			}},
			{CategoryPermission, []string{
				"permission denied",
				"access denied",
				"operation not permitted",
			}},
			{CategoryPath, []string{
				"no such file or directory",
				"file not found",
				"does not exist",
			}},
			{CategoryDelete, []string{
				"directory not empty",
				"cannot remove",
			}},
			{CategoryTransfer, []string{
				"short write",
				"input/output error",
				"i/o error",
				"unexpected eof",
				"save incomplete",
				"zip: not a valid zip file",
			}},
		},
	}
}

type rule struct {
	category ErrorCategory
	patterns []string
}

type patternMatcher struct {
	rules []rule
}

// Match returns the first category with a pattern contained in errorMsg,
// ignoring case.
func (m *patternMatcher) Match(errorMsg string) ErrorCategory {
	lowerMsg := strings.ToLower(errorMsg)

	for _, r := range m.rules {
		for _, pattern := range r.patterns {
			if strings.Contains(lowerMsg, pattern) {
				return r.category
			}
		}
	}

	return CategoryUnknown
}
