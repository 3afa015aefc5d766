package schedule

import (
	"fmt"
	"time"
)

const secondsPerDay = 86400

// DayNumber returns the number of whole days between the Unix epoch and t.
// Instants before the epoch yield negative day numbers.
func DayNumber(t time.Time) int64 {
	secs := t.Unix()
	day := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		day--
	}
	return day
}

// CycleIndex maps now onto a position in a cycle of the given length. Every
// instant of the same UTC day yields the same index.
func CycleIndex(cycleLength int, now time.Time) (int, error) {
	if cycleLength <= 0 {
		return 0, fmt.Errorf("cycle length must be positive, got %d", cycleLength)
	}

	idx := DayNumber(now) % int64(cycleLength)
	if idx < 0 {
		idx += int64(cycleLength)
	}
	return int(idx), nil
}
