package util

import (
	"math"
	"strconv"
	"strings"
)

// NanosPerMilli converts trace clock units to milliseconds.
const NanosPerMilli = 1e6

// FormatMillis converts a nanosecond duration to milliseconds and formats it
// with the shortest representation that round-trips, keeping at least one
// decimal: 5000000 -> "5.0", 1500000 -> "1.5", 250000 -> "0.25". Values below
// 1e-4 or from 1e16 use exponent notation: 1 -> "1e-06".
func FormatMillis(nanos int64) string {
	ms := float64(nanos) / NanosPerMilli
	if abs := math.Abs(ms); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(ms, 'e', -1, 64)
	}
	s := strconv.FormatFloat(ms, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatNumber inserts thousands separators: 1234567 -> "1,234,567".
func FormatNumber(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var result []byte
	for i, digit := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, digit)
	}
	if neg {
		return "-" + string(result)
	}
	return string(result)
}
