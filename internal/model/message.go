package model

import (
	"strings"
	"time"
)

// ProviderType identifies the mail backend a message was read from.
type ProviderType string

const (
	ProviderGmail ProviderType = "gmail"
	ProviderIMAP  ProviderType = "imap"
)

// Header is a single name/value pair from a message payload.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Body holds the inline, transport-encoded data of a part.
// Data is URL-safe base64, possibly without padding.
type Body struct {
	Data string `json:"data,omitempty"`
}

// Part is one node of a multipart message tree.
type Part struct {
	MimeType string   `json:"mimeType,omitempty"`
	Headers  []Header `json:"headers,omitempty"`
	Body     *Body    `json:"body,omitempty"`
	Parts    []*Part  `json:"parts,omitempty"`
}

// RawMessage is a mail message as delivered by a provider, before any
// text extraction. The payload's headers carry Subject and From.
type RawMessage struct {
	ID           string       `json:"id"`
	Provider     ProviderType `json:"provider,omitempty"`
	InternalDate time.Time    `json:"internalDate"`
	Snippet      string       `json:"snippet,omitempty"`
	Payload      *Part        `json:"payload"`
}

// Header returns the value of the first header named name,
// compared case-insensitively, or "" when absent.
func (m *RawMessage) Header(name string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Subject returns the Subject header.
func (m *RawMessage) Subject() string {
	return m.Header("subject")
}

// From returns the From header.
func (m *RawMessage) From() string {
	return m.Header("from")
}

// Age reports how long ago the message was received, relative to now.
func (m *RawMessage) Age(now time.Time) time.Duration {
	if m == nil || m.InternalDate.IsZero() {
		return 0
	}
	return now.Sub(m.InternalDate)
}
