package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextInSeries(t *testing.T) {
	t.Run("empty series starts at 0001", func(t *testing.T) {
		assert.Equal(t, "VC-2026-0001", nextInSeries("VC-2026-", nil))
	})

	t.Run("advances past the highest suffix", func(t *testing.T) {
		existing := []string{"VC-2026-0001", "VC-2026-0002"}
		assert.Equal(t, "VC-2026-0003", nextInSeries("VC-2026-", existing))
	})

	t.Run("deleted lower numbers are never reissued", func(t *testing.T) {
		// Create 0001 and 0002, delete 0001: the next intake must get
		// 0003, not a second 0002.
		existing := []string{"VC-2026-0002"}
		assert.Equal(t, "VC-2026-0003", nextInSeries("VC-2026-", existing))
	})

	t.Run("ignores entries outside the series", func(t *testing.T) {
		existing := []string{"VC-2025-0009", "VC-2026-xxxx", "VC-2026-0004"}
		assert.Equal(t, "VC-2026-0005", nextInSeries("VC-2026-", existing))
	})

	t.Run("grows past four digits", func(t *testing.T) {
		existing := []string{"INV-2026-9999"}
		assert.Equal(t, "INV-2026-10000", nextInSeries("INV-2026-", existing))
	})
}
