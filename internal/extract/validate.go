package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	dateShape     = regexp.MustCompile(`^\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}$`)
	isoDateShape  = regexp.MustCompile(`^\d{4}[/\-]\d{1,2}[/\-]\d{1,2}$`)
	yearShape     = regexp.MustCompile(`^(?:19|20)\d{2}$`)
	numericShape  = regexp.MustCompile(`^[0-9]+$`)
	alphanumShape = regexp.MustCompile(`^[A-Z0-9]{6,8}$`)
)

// IsValidCode reports whether token is acceptable as a final code.
func IsValidCode(token string) bool {
	return validate(token, true)
}

// validate implements IsValidCode. rejectRuns is false for candidates
// written as dashed digit groups: "12-34-56" is not a typed run even though
// its digits ascend.
func validate(token string, rejectRuns bool) bool {
	if len(token) < 4 || len(token) > 8 {
		return false
	}
	if dateShape.MatchString(token) || isoDateShape.MatchString(token) {
		return false
	}
	if allSame(token) {
		return false
	}
	if rejectRuns && isMonotonicDigits(token) {
		return false
	}
	if yearShape.MatchString(token) {
		return false
	}
	if numericShape.MatchString(token) {
		return true
	}
	return alphanumShape.MatchString(token) &&
		strings.ContainsFunc(token, unicode.IsLetter) &&
		strings.ContainsFunc(token, unicode.IsDigit)
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// isMonotonicDigits reports whether s is all digits, each strictly greater
// (or each strictly smaller) than the one before.
func isMonotonicDigits(s string) bool {
	if !numericShape.MatchString(s) {
		return false
	}
	up, down := true, true
	for i := 1; i < len(s); i++ {
		if s[i] <= s[i-1] {
			up = false
		}
		if s[i] >= s[i-1] {
			down = false
		}
	}
	return up || down
}

// process turns a raw candidate into a final code. The numeric projection
// wins when valid; otherwise the upper-cased alphanumeric projection.
func process(candidate string) (string, bool) {
	grouped := dashGrouped(candidate)
	token := strings.Join(strings.Fields(candidate), "")

	numeric := strings.Map(keepDigit, token)
	if len(numeric) >= 4 && len(numeric) <= 8 && validate(numeric, !grouped) {
		return numeric, true
	}

	alnum := strings.ToUpper(strings.Map(keepAlnum, token))
	if len(alnum) >= 6 && len(alnum) <= 8 && validate(alnum, !grouped) {
		return alnum, true
	}

	return "", false
}

// dashGrouped reports whether candidate is two or more digit groups of at
// least two digits each, joined by dashes.
func dashGrouped(candidate string) bool {
	groups := strings.Split(candidate, "-")
	if len(groups) < 2 {
		return false
	}
	for _, g := range groups {
		g = strings.TrimSpace(g)
		if len(g) < 2 || !numericShape.MatchString(g) {
			return false
		}
	}
	return true
}

func isASCIIAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func keepDigit(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

func keepAlnum(r rune) rune {
	if isASCIIAlnum(r) {
		return r
	}
	return -1
}
