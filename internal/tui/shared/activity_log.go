package shared

import (
	"strings"
	"time"
)

// DefaultActivityLimit bounds how many entries an ActivityLog keeps.
const DefaultActivityLimit = 200

// ActivityLog keeps the most recent timestamped entries. The zero value is
// not usable; call NewActivityLog.
type ActivityLog struct {
	entries []string
	limit   int
	now     func() time.Time
}

// NewActivityLog creates a log holding at most limit entries. now may be nil.
func NewActivityLog(limit int, now func() time.Time) *ActivityLog {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	if now == nil {
		now = time.Now
	}

	return &ActivityLog{limit: limit, now: now}
}

// Add appends an entry stamped with the current time, dropping the oldest
// entry when full.
func (l *ActivityLog) Add(entry string) {
	l.entries = append(l.entries, l.now().Format(time.TimeOnly)+"  "+entry)
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

// Entries returns the entries oldest first.
func (l *ActivityLog) Entries() []string {
	return l.entries
}

// RenderActivityLog renders a chronological activity log with optional title.
// If maxEntries > 0, only the most recent maxEntries are shown.
func RenderActivityLog(title string, entries []string, maxEntries int) string {
	var builder strings.Builder

	if trimmedTitle := strings.TrimSpace(title); trimmedTitle != "" {
		builder.WriteString(RenderLabel(trimmedTitle))
		builder.WriteString("\n")
	}

	if len(entries) == 0 {
		return builder.String()
	}

	startIdx := 0
	if maxEntries > 0 && maxEntries < len(entries) {
		startIdx = len(entries) - maxEntries
	}

	for i := startIdx; i < len(entries); i++ {
		builder.WriteString("  ")
		builder.WriteString(entries[i])

		if i < len(entries)-1 {
			builder.WriteString("\n")
		}
	}

	return builder.String()
}
