package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatCents renders 9900 as "99.00".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// ParseCents accepts "99", "99.9" or "99.00".
func ParseCents(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	whole, frac, _ := strings.Cut(value, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("price %q has more than two decimals", value)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, fmt.Errorf("invalid price %q", value)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", value)
	}
	return units*100 + cents, nil
}
