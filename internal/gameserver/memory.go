package gameserver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/mem"
)

// AutoMemory asks ResolveMemory to size the heap from physical RAM.
const AutoMemory = "auto"

const (
	mebibyte       = 1024 * 1024
	minAutoMaxMiB  = 1024
	autoRAMDivisor = 2
)

var (
	ErrInvalidMemory = errors.New("invalid memory size")

	memoryPattern = regexp.MustCompile(`^[0-9]+[kKmMgG]?$`)
)

// ResolveMemory validates a JVM heap size such as "512M" or "2G" and
// expands "auto" to half of physical memory, never below 1024M.
func ResolveMemory(value string) (string, error) {
	value = strings.TrimSpace(value)

	if strings.EqualFold(value, AutoMemory) {
		stat, err := mem.VirtualMemory()
		if err != nil {
			return "", fmt.Errorf("failed to read physical memory: %w", err)
		}

		return autoMaxMemory(stat.Total), nil
	}

	if !memoryPattern.MatchString(value) {
		return "", fmt.Errorf("%w: %q (want a number with an optional K, M or G suffix)", ErrInvalidMemory, value)
	}

	return strings.ToUpper(value), nil
}

func autoMaxMemory(totalBytes uint64) string {
	mib := totalBytes / mebibyte / autoRAMDivisor
	if mib < minAutoMaxMiB {
		mib = minAutoMaxMiB
	}

	return strconv.FormatUint(mib, 10) + "M"
}
