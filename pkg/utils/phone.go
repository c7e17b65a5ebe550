package utils

import (
	"errors"
	"strings"
)

// ErrInvalidPhone is returned for phone numbers that cannot be reduced to
// the canonical +7XXXXXXXXXX form.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone reduces a Russian phone number to the canonical form
// "+7" followed by 10 digits. Accepted input shells are 8XXXXXXXXXX,
// 7XXXXXXXXXX and +7XXXXXXXXXX with optional punctuation (spaces,
// parentheses, dashes, dots). An empty input or a bare prefix such as
// "+7" normalizes to the empty string. Anything else is ErrInvalidPhone.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}

	plus := strings.HasPrefix(s, "+")
	if plus {
		s = s[1:]
	}

	var digits strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '(' || r == ')' || r == '-' || r == '.':
			// punctuation from input masks, ignored
		default:
			return "", ErrInvalidPhone
		}
	}
	d := digits.String()

	if plus && len(d) >= 1 && d[0] != '7' {
		return "", ErrInvalidPhone
	}

	switch {
	case d == "":
		return "", nil
	case d == "7", d == "8":
		// only the country prefix was typed
		return "", nil
	case len(d) == 11 && (d[0] == '7' || d[0] == '8'):
		return "+7" + d[1:], nil
	default:
		return "", ErrInvalidPhone
	}
}
