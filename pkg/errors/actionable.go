// Package errors turns raw failures into actionable errors.
//
// Errors are categorised (network, authentication, disk space and so on) and
// paired with suggestions the operator can act on:
//
//	enricher := errors.NewEnricher()
//	if err := store.UploadFile(ctx, local, remote); err != nil {
//	    enriched := enricher.Enrich(err, local)
//	    fmt.Println(enriched)
//	    fmt.Println(errors.FormatSuggestions(enriched))
//	}
//
// When no path is supplied the enricher tries to pull one out of the message
// ("open /srv/world/level.dat: permission denied").
package errors

import "strings"

// Exported constants.
const (
	CategoryAuth       ErrorCategory = "auth"
	CategoryConfig     ErrorCategory = "config"
	CategoryConflict   ErrorCategory = "conflict"
	CategoryDelete     ErrorCategory = "delete"
	CategoryDiskSpace  ErrorCategory = "disk_space"
	CategoryNetwork    ErrorCategory = "network"
	CategoryPath       ErrorCategory = "path"
	CategoryPermission ErrorCategory = "permission"
	CategoryTransfer   ErrorCategory = "transfer"
	CategoryUnknown    ErrorCategory = "unknown"
)

// ActionableError represents an error with actionable suggestions for the user.
type ActionableError interface {
	error
	OriginalError() string
	Category() ErrorCategory
	Suggestions() []string
	AffectedPath() string
}

// NewActionableError creates a new ActionableError with the given details.
func NewActionableError(
	originalError string,
	category ErrorCategory,
	suggestions []string,
	affectedPath string,
) ActionableError {
	return &actionableError{
		originalError: originalError,
		category:      category,
		suggestions:   suggestions,
		affectedPath:  affectedPath,
	}
}

// ErrorCategory names the kind of failure.
type ErrorCategory string

// FormatSuggestions renders the suggestions of an ActionableError as an
// indented bullet list. Anything else yields "".
func FormatSuggestions(err error) string {
	actionable, ok := err.(ActionableError)
	if !ok || len(actionable.Suggestions()) == 0 {
		return ""
	}

	lines := make([]string, 0, len(actionable.Suggestions()))
	for _, suggestion := range actionable.Suggestions() {
		lines = append(lines, "  • "+suggestion)
	}

	return strings.Join(lines, "\n")
}

type actionableError struct {
	originalError string
	category      ErrorCategory
	suggestions   []string
	affectedPath  string
}

func (e *actionableError) AffectedPath() string { return e.affectedPath }
func (e *actionableError) Category() ErrorCategory { return e.category }
func (e *actionableError) Error() string { return e.originalError }
func (e *actionableError) OriginalError() string { return e.originalError }
func (e *actionableError) Suggestions() []string { return e.suggestions }
