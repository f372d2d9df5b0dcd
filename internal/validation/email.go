package validation

import (
	"errors"
	"net/mail"
	"strings"
)

const maxEmailLength = 254

// ValidateEmail accepts a bare RFC 5322 address with a dotted domain.
// Display-name forms such as "Sam <sam@example.com>" are rejected.
func ValidateEmail(email string) error {
	switch {
	case email == "":
		return errors.New("email address is required")
	case len(email) > maxEmailLength:
		return errors.New("email address is too long (max 254 characters)")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return errors.New("invalid email address format")
	}
	at := strings.LastIndexByte(email, '@')
	if !strings.Contains(email[at+1:], ".") {
		return errors.New("email domain must contain a dot")
	}
	return nil
}
