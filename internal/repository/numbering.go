package repository

import (
	"fmt"
	"strconv"
	"strings"
)

// nextInSeries returns the next number in a prefixed series, one past the
// highest suffix currently in use. Deriving the suffix from a row count
// instead would hand out a colliding number as soon as any lower-numbered
// row is deleted. Entries that do not parse as <prefix><digits> are ignored.
func nextInSeries(prefix string, existing []string) string {
	var highest int
	for _, number := range existing {
		if !strings.HasPrefix(number, prefix) {
			continue
		}
		suffix, err := strconv.Atoi(strings.TrimPrefix(number, prefix))
		if err != nil || suffix <= highest {
			continue
		}
		highest = suffix
	}
	return fmt.Sprintf("%s%04d", prefix, highest+1)
}
