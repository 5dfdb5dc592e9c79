package shared

import (
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Exported constants.
const (
	// ProgressBarWidth is the default width of progress bars
	ProgressBarWidth = 40
	// MaxProgressBarWidth is the maximum width for progress bars
	MaxProgressBarWidth = 100
	// ProgressPercentageScale converts a fraction to a percentage.
	ProgressPercentageScale = 100

	// TickInterval paces redraws of transfer progress.
	TickInterval = 100 * time.Millisecond

	// KeyCtrlC is the key binding for cancellation
	KeyCtrlC = "ctrl+c"
	// PromptArrow is the arrow character used in prompts
	PromptArrow = "▶ "
)

// Palette colors.
func PrimaryColor() lipgloss.Color { return lipgloss.Color(primaryColorCode) }
func ErrorColor() lipgloss.Color { return lipgloss.Color(errorColorCode) }
func SuccessColor() lipgloss.Color { return lipgloss.Color(successColorCode) }

// BoxStyle frames a pane.
func BoxStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(accentColorCode)).
		Padding(0, 1)
}

// DimStyle is used for secondary text.
func DimStyle() lipgloss.Style {
	return fg(dimColorCode)
}

// SelectedStyle highlights the focused entry of a list.
func SelectedStyle() lipgloss.Style {
	return fg(highlightColorCode).Bold(true)
}

// ConsoleInputStyle marks commands typed by the operator in the console pane.
func ConsoleInputStyle() lipgloss.Style {
	return fg(warningColorCode)
}

func RenderDim(text string) string { return DimStyle().Render(text) }
func RenderError(text string) string { return fg(errorColorCode).Bold(true).Render(text) }
func RenderLabel(text string) string { return fg(highlightColorCode).Bold(true).Render(text) }
func RenderSuccess(text string) string { return fg(successColorCode).Bold(true).Render(text) }
func RenderTitle(text string) string { return fg(primaryColorCode).Bold(true).Render(text) }
func RenderWarning(text string) string { return fg(warningColorCode).Bold(true).Render(text) }

func fg(code string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(code))
}

// unexported constants.
const (
	accentColorCode    = "62"  // Blue
	dimColorCode       = "240" // Dark gray
	errorColorCode     = "196" // Red
	highlightColorCode = "86"  // Cyan
	primaryColorCode   = "205" // Pink/purple
	successColorCode   = "42"  // Green
	warningColorCode   = "226" // Yellow
)

// unexported variables.
var (
	//nolint:gochecknoglobals // terminal capabilities are fixed for the life of the process
	colorsDisabled = os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb"
	//nolint:gochecknoglobals // terminal capabilities are fixed for the life of the process
	unicodeDisabled = os.Getenv("TERM") == "dumb"
)
