package live

import (
	"strconv"
	"strings"
)

// parseCount turns a rendered engagement counter like "12", "1,234",
// "1.2K" or "3M" into an integer. Anything unrecognizable is zero;
// counts never go negative.
func parseCount(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(value, "K"):
		multiplier = 1_000
		value = strings.TrimSuffix(value, "K")
	case strings.HasSuffix(value, "M"):
		multiplier = 1_000_000
		value = strings.TrimSuffix(value, "M")
	}

	value = strings.ReplaceAll(value, ",", "")
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || n < 0 {
		return 0
	}
	return int(n * multiplier)
}
