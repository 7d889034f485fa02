package extract

import "regexp"

// Pattern is one entry of the ordered extraction table. Group selects the
// submatch holding the candidate token.
type Pattern struct {
	Name  string
	Re    *regexp.Regexp
	Group int
}

// Match returns the candidate captured by the first match of p in text.
func (p Pattern) Match(text string) (string, bool) {
	m := p.Re.FindStringSubmatch(text)
	if m == nil || p.Group >= len(m) || m[p.Group] == "" {
		return "", false
	}
	return m[p.Group], true
}

func pattern(name, expr string) Pattern {
	return Pattern{Name: name, Re: regexp.MustCompile(expr), Group: 1}
}

// snippetPattern handles short preview text such as
// "Your verification code is 123456" before the general table runs.
var snippetPattern = pattern(
	"snippet",
	`(?i)(?:verification|confirmation)\s+code(?:\s+is)?\s*:?\s*([0-9]{4,8})\b`,
)

// snippetPhrases gate snippetPattern; they are matched literally.
var snippetPhrases = []string{"verification code", "confirmation code"}

// defaultPatterns is ordered most specific first. The first pattern whose
// first match yields a valid code wins.
var defaultPatterns = []Pattern{
	pattern("labeled-code",
		`(?i)(?:verification|auth|security|confirmation|login|sign-in|2fa|authorization)\s+code(?:\s+is\s*[:=]?\s*|\s*[:=]\s*)([0-9]{4,8})\b`),
	pattern("your-code-is",
		`(?i)\b(?:your|the)\s+(?:code|otp|pin|passcode)(?:\s+is\s*[:=]?\s*|\s*[:=]\s*)([0-9]{4,8})\b`),
	pattern("code-colon",
		`(?i)(?:code|pin|otp|passcode)\s*[:=]\s*([0-9]{4,8})\b`),
	pattern("grouped-3-3",
		`(?i)\b(?:code|pin|otp|passcode)\s*[:=]?\s*([0-9]{3}[\s\-][0-9]{3})\b`),
	pattern("grouped-digits",
		`(?i)\b(?:code|pin|otp|passcode)\s*[:=]?\s*([0-9]{1,4}(?:[ \-][0-9]{1,4}){1,7})\b`),
	pattern("prefixed-digits",
		`\b(?i:code|pin|otp|passcode)\s*[:=]?\s*([A-Z0-9]{1,2}[\s\-]+[0-9]{3,6})\b`),
	pattern("generic-label",
		`(?i)(?:code|pin|otp|token|passcode|password)(?:\s+is\s*[:=]?|\s*:=|\s*[:=]|\s)\s*([A-Za-z0-9]{4,8})\b`),
	pattern("double-quoted", `["“”]([0-9]{4,8})["“”]`),
	pattern("single-quoted", `['‘’]([0-9]{4,8})['‘’]`),
	pattern("emphasized", `\s\*\*([0-9]{4,8})\*\*`),
	pattern("parenthesized", `\(([0-9]{4,8})\)`),
	pattern("bracketed", `\[([0-9]{4,8})\]`),
	pattern("near-verification", `(?i)verification[\s\S]{1,50}?\b([0-9]{4,8})\b`),
	pattern("near-authentication", `(?i)authentication[\s\S]{1,50}?\b([0-9]{4,8})\b`),
	pattern("near-one-time", `(?i)one-time[\s\S]{1,50}?\b([0-9]{4,8})\b`),
	pattern("near-security", `(?i)security[\s\S]{1,50}?\b([0-9]{4,8})\b`),
	pattern("bare-6", `\b([0-9]{6})\b`),
	pattern("bare-5", `\b([0-9]{5})\b`),
	pattern("bare-4", `\b([0-9]{4})\b`),
	pattern("bare-8", `\b([0-9]{8})\b`),
	pattern("bare-alphanumeric", `\b([A-Za-z0-9]{6,8})\b`),
}

// DefaultPatterns returns a copy of the built-in pattern table.
func DefaultPatterns() []Pattern {
	out := make([]Pattern, len(defaultPatterns))
	copy(out, defaultPatterns)
	return out
}

// PatternByName looks up a built-in pattern.
func PatternByName(name string) (Pattern, bool) {
	for _, p := range defaultPatterns {
		if p.Name == name {
			return p, true
		}
	}
	return Pattern{}, false
}
