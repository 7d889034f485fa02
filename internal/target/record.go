// Package target decides which page fields receive a verification code and
// drives the fill through a Document.
//
// Attribute collection lives in the Document implementations; everything in
// this package works on plain Records so it can be exercised without a
// browser.
package target

import "strings"

// Rect is an element's bounding box in CSS pixels, relative to the viewport.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Record describes one interactive element as seen at snapshot time.
// Ref is an opaque handle understood only by the Document that produced it.
type Record struct {
	Ref             string `json:"ref"`
	Tag             string `json:"tag"`
	Type            string `json:"type"`
	ID              string `json:"id"`
	Name            string `json:"name"`
	Placeholder     string `json:"placeholder"`
	Class           string `json:"class"`
	AriaLabel       string `json:"ariaLabel"`
	DataTest        string `json:"dataTest"`
	Autocomplete    string `json:"autocomplete"`
	Pattern         string `json:"pattern"`
	InputMode       string `json:"inputMode"`
	MaxLength       int    `json:"maxLength"` // 0 when not declared
	Value           string `json:"value"`
	LabelText       string `json:"labelText"`
	NearbyText      string `json:"nearbyText"`
	Rect            Rect   `json:"rect"`
	InViewport      bool   `json:"inViewport"`
	Visible         bool   `json:"visible"`
	Disabled        bool   `json:"disabled"`
	ReadOnly        bool   `json:"readOnly"`
	ContentEditable bool   `json:"contentEditable"`
}

// nonTextTypes are input kinds that can never hold a typed code.
var nonTextTypes = map[string]bool{
	"checkbox":       true,
	"radio":          true,
	"submit":         true,
	"button":         true,
	"file":           true,
	"hidden":         true,
	"image":          true,
	"reset":          true,
	"color":          true,
	"range":          true,
	"date":           true,
	"datetime-local": true,
	"month":          true,
	"time":           true,
	"week":           true,
}

// textLikeTypes are the input kinds considered for whole-field filling.
var textLikeTypes = map[string]bool{
	"":         true,
	"text":     true,
	"tel":      true,
	"number":   true,
	"password": true,
	"email":    true,
}

func (r Record) inputType() string {
	return strings.ToLower(strings.TrimSpace(r.Type))
}

func (r Record) tag() string {
	return strings.ToLower(r.Tag)
}

// Eligible reports whether r is visible, writable and able to hold text.
func Eligible(r Record) bool {
	if !r.Visible || r.Disabled || r.ReadOnly {
		return false
	}
	switch {
	case r.ContentEditable, r.tag() == "textarea":
		return true
	case r.tag() == "input":
		return !nonTextTypes[r.inputType()]
	default:
		return false
	}
}

// TextLike reports whether an eligible r can take a whole code.
func TextLike(r Record) bool {
	if r.tag() != "input" {
		return true
	}
	return textLikeTypes[r.inputType()]
}

// SingleChar reports whether r is sized for exactly one character.
func SingleChar(r Record) bool {
	return r.MaxLength == 1
}

// Empty reports whether the field currently has no value.
func (r Record) Empty() bool {
	return strings.TrimSpace(r.Value) == ""
}

// Describe returns a short human-readable label for logs.
func (r Record) Describe() string {
	parts := []string{r.tag()}
	for _, kv := range [][2]string{
		{"id", r.ID},
		{"name", r.Name},
		{"type", r.Type},
		{"placeholder", r.Placeholder},
	} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+`"`+kv[1]+`"`)
		}
	}
	return strings.Join(parts, " ")
}
