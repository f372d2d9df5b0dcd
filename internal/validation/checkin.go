package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxTags      = 20
	maxTagLength = 50
)

// ValidateRange checks that v lies in [lo, hi].
func ValidateRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s must be between %d and %d", field, lo, hi)
	}
	return nil
}

// ValidateNote limits free text to maxLen characters.
func ValidateNote(note string, maxLen int) error {
	if utf8.RuneCountInString(note) > maxLen {
		return fmt.Errorf("note is too long (max %d characters)", maxLen)
	}
	return nil
}

// ValidateTags checks trigger and strategy lists.
func ValidateTags(field string, tags []string) error {
	if len(tags) > maxTags {
		return fmt.Errorf("%s: too many entries (max %d)", field, maxTags)
	}
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			return fmt.Errorf("%s: entries must not be empty", field)
		}
		if utf8.RuneCountInString(trimmed) > maxTagLength {
			return fmt.Errorf("%s: entries must be at most %d characters", field, maxTagLength)
		}
	}
	return nil
}

// ValidateBackfillDate requires day to be 1..maxDays days before today.
// Both values must be normalized to midnight UTC.
func ValidateBackfillDate(day, today time.Time, maxDays int) error {
	if !day.Before(today) {
		return errors.New("backfill date must be in the past")
	}
	if day.Before(today.AddDate(0, 0, -maxDays)) {
		return fmt.Errorf("backfill date must be within the last %d days", maxDays)
	}
	return nil
}

// ValidateOneOf checks v against an allowed set.
func ValidateOneOf(field, v string, allowed []string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of: %s", field, strings.Join(allowed, ", "))
}
