package auth

import "unicode"

// checkStrength enforces the password policy: a minimum length plus a minimum
// number of character classes among lower/upper/digit/symbol.
func checkStrength(password string, minLength, minClasses int) error {
	if len(password) < minLength {
		return ErrWeakPassword
	}
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	classes := 0
	for _, present := range []bool{lower, upper, digit, symbol} {
		if present {
			classes++
		}
	}
	if classes < minClasses {
		return ErrWeakPassword
	}
	return nil
}
