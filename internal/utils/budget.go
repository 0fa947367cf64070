package utils

import (
	"regexp"
	"strconv"
)

var budgetNumberRe = regexp.MustCompile(`\d+`)

// ParseBudgetAmount extracts the first number from a free-text budget
// range like "R$150-250" or "around 300". Returns fallback when the
// text yields nothing numeric.
func ParseBudgetAmount(budget string, fallback int64) int64 {
	m := budgetNumberRe.FindString(budget)
	if m == "" {
		return fallback
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
