package database

import (
	"strconv"
	"strings"
)

// generatePlaceholders builds the "($1, $2), ($3, $4), ..." VALUES list for
// a multi-row insert with a fixed column count, bound in row-major order.
func generatePlaceholders(rows, columns int) string {
	var b strings.Builder
	b.Grow(rows * columns * 5)
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < columns; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}
