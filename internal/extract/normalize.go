// Package extract turns mail text into a verification code, or a
// definitive "no code" result.
package extract

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/nhle/otp-autofill/internal/model"
)

var (
	// tagPattern also removes a tag left open at the end of the text.
	tagPattern = regexp.MustCompile(`</?[^>]+(?:>|$)`)
	spaceRun   = regexp.MustCompile(`[\s\v\p{Zs}]+`)

	base64Fixer = strings.NewReplacer("+", "-", "/", "_")
)

// ErrInvalidUTF8 is returned by DecodeBody when the decoded bytes are not text.
var ErrInvalidUTF8 = errors.New("decoded body is not valid UTF-8")

// Normalize flattens a subject and a part tree into canonical search text.
// Parts are visited depth-first, own data before children; a part whose
// data cannot be decoded contributes nothing.
func Normalize(subject string, root *model.Part) string {
	var b strings.Builder
	b.WriteString(subject)
	b.WriteByte(' ')
	writePartText(&b, root)
	return NormalizeText(b.String())
}

// PartText returns the decoded, unnormalized text of a part tree.
func PartText(root *model.Part) string {
	var b strings.Builder
	writePartText(&b, root)
	return b.String()
}

func writePartText(b *strings.Builder, p *model.Part) {
	if p == nil {
		return
	}
	if p.Body != nil && p.Body.Data != "" {
		text, err := DecodeBody(p.Body.Data)
		if err == nil {
			b.WriteString(text)
		}
		b.WriteByte(' ')
	}
	for _, child := range p.Parts {
		writePartText(b, child)
		b.WriteByte(' ')
	}
}

// DecodeBody decodes URL-safe base64 body data into UTF-8 text. Missing
// padding and standard-alphabet input are both accepted.
func DecodeBody(data string) (string, error) {
	data = strings.TrimRight(strings.TrimSpace(data), "=")
	raw, err := base64.RawURLEncoding.DecodeString(base64Fixer.Replace(data))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", ErrInvalidUTF8
	}
	return string(raw), nil
}

// EncodeBody is the inverse of DecodeBody, used by providers that hand
// over already-decoded MIME parts.
func EncodeBody(text string) string {
	return base64.URLEncoding.EncodeToString([]byte(text))
}

// NormalizeText strips tag-like sequences, folds compatibility characters
// (full-width digits become ASCII), collapses whitespace and trims.
// NormalizeText(NormalizeText(s)) == NormalizeText(s).
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")
	s = norm.NFKC.String(s)
	s = tagPattern.ReplaceAllString(s, " ")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
