// Package validation checks request parameters before they reach the views.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var yearRegex = regexp.MustCompile(`^\d{4}$`)

// ValidateYearSelection accepts "Alltime" or a four-digit calendar year no
// earlier than 1900 and not in the future.
func ValidateYearSelection(sel string) error {
	if sel == "Alltime" {
		return nil
	}
	if !yearRegex.MatchString(sel) {
		return fmt.Errorf("invalid year selection: %q, expected Alltime or YYYY", sel)
	}
	year, err := strconv.Atoi(sel)
	if err != nil {
		return fmt.Errorf("invalid year: %w", err)
	}
	if year < 1900 {
		return fmt.Errorf("year %d is too early", year)
	}
	if year > time.Now().Year() {
		return fmt.Errorf("year %d is in the future", year)
	}
	return nil
}

// ValidateCount bounds a top-N request parameter.
func ValidateCount(n int) error {
	if n < 1 || n > 100 {
		return fmt.Errorf("count must be between 1 and 100, got %d", n)
	}
	return nil
}
