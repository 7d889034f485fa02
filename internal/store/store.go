package store

import (
	"context"

	"github.com/nhle/otp-autofill/internal/model"
)

// KeyAuthenticated is the settings key of the persisted "authenticated" flag.
const KeyAuthenticated = "authenticated"

// Store defines the persistence interface for settings, extracted codes
// and check history.
type Store interface {
	// === Settings ===

	// GetBool returns the boolean stored under key, or false when unset.
	GetBool(ctx context.Context, key string) (bool, error)
	SetBool(ctx context.Context, key string, value bool) error

	// === Codes ===

	RecordCode(ctx context.Context, code model.Code) error
	// LastCode returns the most recent code, or nil when none was recorded.
	LastCode(ctx context.Context) (*model.Code, error)
	RecentCodes(ctx context.Context, limit int) ([]model.Code, error)

	// === Checks ===

	RecordCheck(ctx context.Context, rec model.CheckRecord) error
	RecentChecks(ctx context.Context, limit int) ([]model.CheckRecord, error)

	Close() error
}
