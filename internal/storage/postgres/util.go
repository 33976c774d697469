package postgres

import "strconv"

// fieldFilter appends a "AND col = $n" clause fragment; n is the 1-based
// positional placeholder index of the argument already pushed onto args.
func fieldFilter(column string, n int) string {
	return " AND " + column + " = $" + itoa(n)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
