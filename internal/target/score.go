package target

import "strings"

// verificationTerms is matched as a substring, lower case.
var verificationTerms = []string{
	"verification", "verify", "code", "otp", "one-time", "onetime",
	"confirm", "confirmation", "security", "auth", "authenticate",
	"validation", "pin", "passcode", "token", "2fa", "tfa",
}

const (
	attrTermWeight   = 3
	nearbyTermWeight = 2
	maxLengthWeight  = 4
	numericWeight    = 2
	digitPatWeight   = 2
	digitsOnlyWeight = 3
	oneTimeWeight    = 5
)

// Score rates how likely r is to be a verification code field.
func Score(r Record) int {
	score := attrTermWeight*countTerms(attrText(r)) +
		nearbyTermWeight*countTerms(nearbyText(r))

	if r.MaxLength >= 4 && r.MaxLength <= 8 {
		score += maxLengthWeight
	}
	if t := r.inputType(); t == "tel" || t == "number" || strings.EqualFold(r.InputMode, "numeric") {
		score += numericWeight
	}
	if strings.Contains(r.Pattern, `\d`) {
		score += digitPatWeight
	}
	if r.Pattern == "[0-9]*" {
		score += digitsOnlyWeight
	}
	if strings.EqualFold(strings.TrimSpace(r.Autocomplete), "one-time-code") {
		score += oneTimeWeight
	}
	return score
}

// LooksLikeVerification reports whether any identifying attribute of r
// mentions a verification term. Only such fields receive mirrored fills.
func LooksLikeVerification(r Record) bool {
	return countTerms(attrText(r)) > 0
}

func attrText(r Record) string {
	return strings.ToLower(strings.Join([]string{
		r.ID, r.Name, r.Placeholder, r.Class, r.AriaLabel, r.DataTest, r.Autocomplete,
	}, " "))
}

func nearbyText(r Record) string {
	return strings.ToLower(r.LabelText + " " + r.NearbyText)
}

func countTerms(text string) int {
	n := 0
	for _, term := range verificationTerms {
		if strings.Contains(text, term) {
			n++
		}
	}
	return n
}
