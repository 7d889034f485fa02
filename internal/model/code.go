package model

import "time"

// Code is a verification code extracted from a message. The value is
// either 4-8 digits or 6-8 uppercase alphanumerics.
type Code struct {
	Value     string       `json:"code" db:"code"`
	MessageID string       `json:"message_id" db:"message_id"`
	Provider  ProviderType `json:"provider" db:"provider"`
	FoundAt   time.Time    `json:"found_at" db:"found_at"`
}

// Fresh reports whether the code was found within maxAge of now.
// Callers decide whether to enforce it.
func (c Code) Fresh(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	return now.Sub(c.FoundAt) <= maxAge
}
