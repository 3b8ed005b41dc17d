package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratePlaceholders(t *testing.T) {
	assert.Equal(t, "($1)", generatePlaceholders(1, 1))
	assert.Equal(t, "($1, $2)", generatePlaceholders(1, 2))
	assert.Equal(t, "($1, $2), ($3, $4)", generatePlaceholders(2, 2))
	assert.Equal(t, "($1, $2, $3), ($4, $5, $6), ($7, $8, $9)", generatePlaceholders(3, 3))
}

func TestGeneratePlaceholders_BindOrderIsRowMajor(t *testing.T) {
	// The second row of a 15-column insert starts at $16.
	got := generatePlaceholders(2, 15)
	assert.Contains(t, got, "($16, ")
	assert.Contains(t, got, "$30)")
}
