package shared

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/joe/server-sync/internal/lifecycle"
)

// RenderTimeline renders one server cycle as Retrieve ── Run ── Save.
//
// current is the lifecycle state now; reached is the furthest state the most
// recent cycle got to (Offline if none has run) and failed reports whether
// that cycle ended in an error. While a cycle is in flight, earlier phases
// show ✓, the current one ◉ and later ones ○. Once it is over, the phase it
// stopped in shows ✗ on failure and phases it never reached show ⊘.
func RenderTimeline(current, reached lifecycle.State, failed bool) string {
	phases := []struct {
		name  string
		state lifecycle.State
	}{
		{"Retrieve", lifecycle.RetrievingFiles},
		{"Run", lifecycle.Running},
		{"Save", lifecycle.SavingFiles},
	}

	indexOf := func(state lifecycle.State) int {
		for i, phase := range phases {
			if phase.state == state {
				return i
			}
		}

		return -1
	}

	inFlight := current != lifecycle.Offline
	pivot := indexOf(current)

	if !inFlight {
		pivot = indexOf(reached)
	}

	parts := make([]string, 0, len(phases))

	for i, phase := range phases {
		var symbol string

		var style lipgloss.Style

		switch {
		case pivot < 0:
			symbol, style = PendingSymbol(), DimStyle()
		case i < pivot:
			symbol, style = SuccessSymbol(), lipgloss.NewStyle().Foreground(SuccessColor())
		case i == pivot && inFlight:
			symbol, style = ActiveSymbol(), lipgloss.NewStyle().Foreground(PrimaryColor())
		case i == pivot && failed:
			symbol, style = ErrorSymbol(), lipgloss.NewStyle().Foreground(ErrorColor())
		case i == pivot:
			symbol, style = SuccessSymbol(), lipgloss.NewStyle().Foreground(SuccessColor())
		case inFlight:
			symbol, style = PendingSymbol(), DimStyle()
		default:
			symbol, style = CancelledSymbol(), DimStyle()
		}

		parts = append(parts, style.Render(symbol+" "+phase.name))
	}

	return strings.Join(parts, DimStyle().Render(" ── "))
}
