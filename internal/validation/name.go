package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ValidateUsername allows 3 to 30 letters, digits, dots, dashes or underscores.
func ValidateUsername(name string) error {
	trimmed := strings.TrimSpace(name)

	if trimmed == "" {
		return errors.New("username is required")
	}

	if len(trimmed) < 3 {
		return errors.New("username is too short (min 3 characters)")
	}

	if len(trimmed) > 30 {
		return errors.New("username is too long (max 30 characters)")
	}

	for _, r := range trimmed {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.' {
			return errors.New("username may only contain letters, digits, dots, dashes and underscores")
		}
	}

	return nil
}
