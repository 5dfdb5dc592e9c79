package shared

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"

	xfer "github.com/joe/server-sync/internal/progress"
)

// NewProgressModel returns a bar of the given width in the UI palette. The
// percentage is rendered by the caller.
func NewProgressModel(width int) progress.Model {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = width
	bar.ShowPercentage = false

	if !colorsDisabled {
		bar.EmptyColor = dimColorCode
		bar.FullColor = accentColorCode
	}

	return bar
}

// RenderASCIIProgress draws "[=====>    ] 55%" for terminals without color.
// fraction is clamped to 0..1.
func RenderASCIIProgress(fraction float64, width int) string {
	fraction = min(max(fraction, 0), 1)
	filled := int(fraction * float64(width))

	var body string

	switch {
	case filled >= width:
		body = strings.Repeat("=", width)
	case fraction > 0:
		equals := max(filled-1, 0)
		if filled >= 3 { //nolint:mnd // arrow trails the fill point on wider bars
			equals = filled - 2 //nolint:mnd
		}

		body = strings.Repeat("=", equals) + ">" + strings.Repeat(" ", width-equals-1)
	default:
		body = strings.Repeat(" ", width)
	}

	return fmt.Sprintf("[%s] %d%%", body, int(fraction*ProgressPercentageScale))
}

// RenderProgress uses the styled bar, or the ASCII one when NO_COLOR is set
// or TERM=dumb.
func RenderProgress(model progress.Model, fraction float64) string {
	if colorsDisabled {
		return RenderASCIIProgress(fraction, model.Width)
	}

	return model.ViewAs(fraction)
}

// RenderTransfer renders the archive transfer in flight: a label line with
// size, rate and ETA, then the bar. Transfers of unknown size get no bar.
func RenderTransfer(model progress.Model, snap xfer.Snapshot, stats xfer.Stats) string {
	label := fmt.Sprintf("%s %s", transferVerb(snap.Kind), snap.Name)

	if snap.BytesTotal <= 0 {
		return label + "  " + RenderDim(FormatBytes(snap.BytesDone))
	}

	detail := FormatBytes(snap.BytesDone) + " / " + FormatBytes(snap.BytesTotal)
	if stats.BytesPerSecond > 0 {
		detail += "  " + FormatRate(stats.BytesPerSecond)
	}

	if stats.ETA > 0 {
		detail += "  ETA " + FormatDuration(stats.ETA)
	}

	return label + "  " + RenderDim(detail) + "\n" + RenderProgress(model, stats.Percent/ProgressPercentageScale)
}

func transferVerb(kind xfer.Kind) string {
	switch kind {
	case xfer.KindUpload:
		return "Uploading"
	case xfer.KindDownload:
		return "Downloading"
	case xfer.KindMetadata:
		return "Reading"
	default:
		return string(kind)
	}
}
