package extract

import "strings"

// contextTerms must appear somewhere in a message before any pattern runs.
var contextTerms = []string{
	"verification", "verify", "code", "pin", "otp", "passcode",
	"secure", "security", "authorization", "authenticate",
	"confirm", "confirmation", "login", "sign-in", "2fa", "two-factor",
	"one-time", "password", "token",
}

// HasVerificationContext reports whether text mentions any verification
// term, case-insensitively.
func HasVerificationContext(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range contextTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
