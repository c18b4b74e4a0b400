package feed

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxSeconds bounds input to values a float64 represents exactly.
const maxSeconds = 1 << 53

// FormatDuration renders whole seconds as zero-padded HH:MM:SS. Hours are
// not wrapped at 24.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

// ParseDuration coerces an API duration into whole seconds. Fractional
// values are floored.
func ParseDuration(raw string) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, ErrInvalidDuration
	}

	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 || int64(n) > maxSeconds {
			return 0, ErrInvalidDuration
		}
		return n, nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > maxSeconds {
		return 0, ErrInvalidDuration
	}
	return int(math.Floor(f)), nil
}
