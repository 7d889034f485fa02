package extract

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/otp-autofill/internal/model"
)

// Result describes how Explain reached its decision.
type Result struct {
	Code    string
	Found   bool
	Gated   bool   // true when the context gate rejected the text
	Pattern string // name of the winning pattern, "" when none
}

// Extractor runs the gate, the snippet fast path and the pattern table.
// An Extractor is safe for concurrent use.
type Extractor struct {
	patterns []Pattern
	logger   *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPatterns replaces the pattern table.
func WithPatterns(patterns []Pattern) Option {
	return func(e *Extractor) {
		e.patterns = patterns
	}
}

// WithLogger sets the logger used for per-pattern debug traces.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Extractor with the built-in pattern table.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		patterns: defaultPatterns,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = New()

// Extract finds a verification code in raw text using the default table.
func Extract(raw string) (string, bool) {
	return defaultExtractor.Extract(raw)
}

// Extract finds a verification code in raw text. A false result is the
// normal "no code" answer.
func (e *Extractor) Extract(raw string) (string, bool) {
	r := e.Explain(raw)
	return r.Code, r.Found
}

// Explain is Extract with the reasoning attached.
func (e *Extractor) Explain(raw string) Result {
	text := NormalizeText(raw)
	if text == "" {
		return Result{}
	}

	if !HasVerificationContext(text) {
		e.logger.Debug("no verification context, skipping patterns")
		return Result{Gated: true}
	}

	// The fast path reads the raw input; markup in between defers to the table.
	if containsAny(raw, snippetPhrases) {
		if code, ok := e.try(snippetPattern, raw); ok {
			return Result{Code: code, Found: true, Pattern: snippetPattern.Name}
		}
	}

	for _, p := range e.patterns {
		if code, ok := e.try(p, text); ok {
			return Result{Code: code, Found: true, Pattern: p.Name}
		}
	}

	e.logger.Debug("no pattern produced a valid code")
	return Result{}
}

func (e *Extractor) try(p Pattern, text string) (string, bool) {
	candidate, ok := p.Match(text)
	if !ok {
		return "", false
	}
	code, ok := process(candidate)
	e.logger.Debug("pattern matched",
		zap.String("pattern", p.Name),
		zap.String("candidate", candidate),
		zap.Bool("accepted", ok),
	)
	return code, ok
}

// ExtractMessage normalizes a provider message and extracts its code.
func (e *Extractor) ExtractMessage(msg *model.RawMessage, now time.Time) (model.Code, bool) {
	if msg == nil || msg.Payload == nil {
		return model.Code{}, false
	}
	code, ok := e.Extract(Normalize(msg.Subject(), msg.Payload))
	if !ok && msg.Snippet != "" {
		// Some providers only deliver the preview for very short mails.
		code, ok = e.Extract(msg.Subject() + " " + msg.Snippet)
	}
	if !ok {
		return model.Code{}, false
	}
	return model.Code{
		Value:     code,
		MessageID: msg.ID,
		Provider:  msg.Provider,
		FoundAt:   now,
	}, true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
