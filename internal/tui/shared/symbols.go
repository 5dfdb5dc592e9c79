package shared

// ActiveSymbol marks the phase in progress.
func ActiveSymbol() string {
	if unicodeDisabled {
		return "[*]"
	}

	return "◉"
}

// CancelledSymbol marks phases skipped after a failure.
func CancelledSymbol() string {
	if unicodeDisabled {
		return "[!]"
	}

	return "⊘"
}

func ErrorSymbol() string {
	if unicodeDisabled {
		return "[X]"
	}

	return "✗"
}

func PendingSymbol() string {
	if unicodeDisabled {
		return "[ ]"
	}

	return "○"
}

func SuccessSymbol() string {
	if unicodeDisabled {
		return "[v]"
	}

	return "✓"
}
