package shared

import (
	"fmt"
	"strings"

	"github.com/joe/server-sync/pkg/errors"
)

// ErrorLimit caps how many errors RenderErrorList shows.
const ErrorLimit = 3

// RenderActionableError renders err with its enriched suggestions, wrapping
// the message at maxWidth when maxWidth > 0.
func RenderActionableError(err error, maxWidth int) string {
	if err == nil {
		return ""
	}

	enriched := errors.NewEnricher().Enrich(err, "")

	msg := enriched.Error()
	if maxWidth > 3 && len(msg) > maxWidth {
		msg = msg[:maxWidth-3] + "..."
	}

	var builder strings.Builder

	fmt.Fprintf(&builder, "%s %s", ErrorSymbol(), RenderError(msg))

	if suggestions := errors.FormatSuggestions(enriched); suggestions != "" {
		builder.WriteString("\n")
		builder.WriteString(RenderDim(suggestions))
	}

	return builder.String()
}

// RenderErrorList renders up to ErrorLimit errors followed by an overflow line.
func RenderErrorList(errs []error, maxWidth int) string {
	if len(errs) == 0 {
		return ""
	}

	rendered := make([]string, 0, min(len(errs), ErrorLimit)+1)

	for i, err := range errs {
		if i >= ErrorLimit {
			rendered = append(rendered, fmt.Sprintf("  ... and %d more error(s)", len(errs)-ErrorLimit))

			break
		}

		rendered = append(rendered, RenderActionableError(err, maxWidth))
	}

	return strings.Join(rendered, "\n")
}
