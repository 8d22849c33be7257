package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var reNumberChunk = regexp.MustCompile(`[\d.,+-]+`)

// ParsePrice converts a raw price string ("1.200,50", "$19.99", "12,5") into
// a non-negative amount. It refuses to guess on ambiguous or invalid input
// and returns an error instead of silently defaulting.
//
// Separator rules:
//   - both "." and "," present: the last separator is the decimal separator
//     ("1.200,50" → 1200.50, "1,200.50" → 1200.50)
//   - only commas: a suffix of one or two digits is a decimal part
//     ("19,99" → 19.99, "12,5" → 12.5), three or more digits means
//     thousands grouping ("1,000" → 1000)
//   - only dots: more than one dot means thousands grouping
//     ("1.000.000" → 1000000)
func ParsePrice(raw string) (float64, error) {
	s := strings.TrimSpace(strings.NewReplacer("\u00a0", "", " ", "").Replace(raw))
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}

	num := reNumberChunk.FindString(s)
	if num == "" {
		return 0, fmt.Errorf("no numeric content in price %q", raw)
	}

	dots := strings.Count(num, ".")
	commas := strings.Count(num, ",")

	clean := num
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(num, ".") > strings.LastIndex(num, ",") {
			clean = strings.ReplaceAll(num, ",", "")
		} else {
			clean = strings.ReplaceAll(strings.ReplaceAll(num, ".", ""), ",", ".")
		}
	case commas > 0:
		idx := strings.LastIndex(num, ",")
		if len(num)-idx-1 > 2 {
			clean = strings.ReplaceAll(num, ",", "")
		} else {
			clean = strings.ReplaceAll(num, ",", ".")
		}
	case dots > 1:
		clean = strings.ReplaceAll(num, ".", "")
	}

	amount, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price format %q", raw)
	}
	if amount < 0 {
		return 0, fmt.Errorf("price cannot be negative: %q", raw)
	}
	return amount, nil
}
