package errors

import (
	"errors"
	"regexp"
	"strings"

	"github.com/joe/server-sync/pkg/filesystem"
)

// Enricher enriches standard errors with actionable suggestions.
type Enricher interface {
	Enrich(err error, affectedPath string) error
}

// NewEnricher creates a new Enricher with default pattern matcher and suggestion generator.
func NewEnricher() Enricher {
	return &enricher{
		matcher:   NewPatternMatcher(),
		generator: NewSuggestionGenerator(),
	}
}

// unexported variables.
var (
	//nolint:gochecknoglobals // compiled once, shared by every enricher
	pathExtractionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\w+\s+([./][^\s:]+):`),
		regexp.MustCompile(`\b\w+\s+([A-Za-z]:\\[^\s:]+):`),
		regexp.MustCompile(`\b\w+\s+([A-Za-z]:/[^\s:]+):`),
	}
)

type enricher struct {
	matcher   PatternMatcher
	generator SuggestionGenerator
}

// Enrich categorises err and attaches suggestions. ActionableErrors pass
// through unchanged. An empty affectedPath is filled from the message when
// one can be found.
func (e *enricher) Enrich(err error, affectedPath string) error {
	var actionableErr ActionableError
	if errors.As(err, &actionableErr) {
		return actionableErr
	}

	errMsg := err.Error()

	if affectedPath == "" {
		affectedPath = extractPath(errMsg)
	}

	category := categoryOf(err)
	if category == CategoryUnknown {
		category = e.matcher.Match(errMsg)
	}

	return NewActionableError(
		errMsg,
		category,
		e.generator.Generate(category, affectedPath),
		affectedPath,
	)
}

// categoryOf recognises the remote layer's sentinel errors regardless of how
// they were wrapped.
func categoryOf(err error) ErrorCategory {
	switch {
	case errors.Is(err, filesystem.ErrAuth):
		return CategoryAuth
	case errors.Is(err, filesystem.ErrInvalidRemoteURL):
		return CategoryConfig
	case filesystem.IsConnectionLost(err):
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

// extractPath pulls the path out of messages shaped like
// "open /srv/world/level.dat: permission denied".
func extractPath(errorMsg string) string {
	for _, pattern := range pathExtractionPatterns {
		if matches := pattern.FindStringSubmatch(errorMsg); len(matches) > 1 {
			if path := strings.TrimSpace(matches[1]); path != "" {
				return path
			}
		}
	}

	return ""
}
