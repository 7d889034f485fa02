package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidCode(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"482913", true},
		{"5821", true},
		{"12345678", false}, // ascending
		{"987654", false},   // descending
		{"1357", false},     // ascending, not consecutive
		{"000000", false},
		{"2024", false},
		{"1999", false},
		{"2100", true},
		{"123", false},
		{"123456789", false},
		{"12/05/2024", false},
		{"2024-1-5", false},
		{"K7QX2M", true},
		{"ABCDEF", false},  // no digit
		{"AB12", false},    // alphanumeric needs six characters
		{"ab12cd", false},  // lowercase is not a final code
		{"A1B2C3D4", true}, // eight characters
		{"AAAAAA", false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidCode(tt.token))
		})
	}
}

func TestProcess(t *testing.T) {
	tests := []struct {
		candidate string
		want      string
		wantOK    bool
	}{
		{"482913", "482913", true},
		{"482 913", "482913", true},
		{"12-34-56", "123456", true},
		{"123456", "", false},
		{"1 2 3 4 5 6", "", false},
		{"12 34", "", false},
		{"1-2-3-4", "", false},
		{"G-582913", "582913", true},
		{"k7qx2m", "K7QX2M", true},
		{"is2023", "IS2023", true},
		{"2023", "", false},
		{"hello", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			got, ok := process(tt.candidate)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPatternsIndividually(t *testing.T) {
	tests := []struct {
		pattern string
		text    string
		want    string
	}{
		{"labeled-code", "Your security code is 771245 today", "771245"},
		{"labeled-code", "2FA code=48213", "48213"},
		{"your-code-is", "the PIN is 8841", "8841"},
		{"code-colon", "OTP: 302918", "302918"},
		{"grouped-3-3", "code 482-913", "482-913"},
		{"grouped-digits", "passcode: 12 34 56", "12 34 56"},
		{"prefixed-digits", "code: G-582913", "G-582913"},
		{"generic-label", "password is hunter22", "hunter22"},
		{"double-quoted", `enter "5521"`, "5521"},
		{"parenthesized", "use (77102)", "77102"},
		{"bracketed", "use [77102]", "77102"},
		{"emphasized", "code **66120**", "66120"},
		{"near-verification", "verification for your account: 639201", "639201"},
		{"near-one-time", "one-time key below 40912", "40912"},
		{"bare-6", "x 639201 y", "639201"},
		{"bare-8", "x 63920144 y", "63920144"},
		{"bare-alphanumeric", "x ZX81AB y", "ZX81AB"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.text, func(t *testing.T) {
			p, ok := PatternByName(tt.pattern)
			if !assert.True(t, ok) {
				return
			}
			got, ok := p.Match(tt.text)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultPatternsIsACopy(t *testing.T) {
	ps := DefaultPatterns()
	ps[0] = Pattern{Name: "changed"}
	assert.Equal(t, "labeled-code", DefaultPatterns()[0].Name)
}
