package gameserver

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/process"
)

// Stats is a point-in-time resource reading of the server process.
type Stats struct {
	PID        int32
	CPUPercent float64
	RSS        uint64
	NumThreads int32
	Uptime     time.Duration
}

// String renders the stats for a status line.
func (s Stats) String() string {
	return fmt.Sprintf("pid %d, cpu %.1f%%, mem %s, %d threads, up %s",
		s.PID, s.CPUPercent, humanize.IBytes(s.RSS), s.NumThreads, s.Uptime.Truncate(time.Second))
}

// Stats reads CPU and memory usage. Fields the platform cannot report are
// left zero.
func (p *Process) Stats() (*Stats, error) {
	select {
	case <-p.exited:
		return nil, ErrNotRunning
	default:
	}

	proc, err := process.NewProcess(int32(p.PID())) //nolint:gosec // pids fit in int32
	if err != nil {
		return nil, fmt.Errorf("failed to inspect server process: %w", err)
	}

	stats := &Stats{PID: proc.Pid}

	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}

	if info, err := proc.MemoryInfo(); err == nil && info != nil {
		stats.RSS = info.RSS
	}

	if threads, err := proc.NumThreads(); err == nil {
		stats.NumThreads = threads
	}

	if created, err := proc.CreateTime(); err == nil {
		stats.Uptime = time.Since(time.UnixMilli(created))
	}

	return stats, nil
}
