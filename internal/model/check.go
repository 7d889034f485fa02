package model

import "time"

// CheckStatus is the outcome reported for one check cycle.
type CheckStatus string

const (
	CheckChecking    CheckStatus = "checking"
	CheckNoEmails    CheckStatus = "noEmails"
	CheckCodeFound   CheckStatus = "codeFound"
	CheckNoCodeFound CheckStatus = "noCodeFound"
	CheckError       CheckStatus = "error"
)

// Terminal reports whether the status ends a check cycle.
func (s CheckStatus) Terminal() bool {
	return s != CheckChecking
}

// CheckRecord is the persisted summary of one completed check cycle.
type CheckRecord struct {
	ID         string      `json:"id" db:"id"`
	Status     CheckStatus `json:"status" db:"status"`
	Detail     string      `json:"detail" db:"detail"`
	StartedAt  time.Time   `json:"started_at" db:"started_at"`
	FinishedAt time.Time   `json:"finished_at" db:"finished_at"`
}
