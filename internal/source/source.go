package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/otp-autofill/internal/model"
)

// AuthError indicates that authentication has failed or expired for a
// provider. Callers react by clearing the stored authenticated flag.
type AuthError struct {
	Provider model.ProviderType
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ErrNotFound is returned by Fetch for an unknown message id.
var ErrNotFound = errors.New("message not found")

// ListOptions selects which messages List returns.
type ListOptions struct {
	// Since limits results to messages received after this instant.
	// Unread messages are returned regardless of age.
	Since time.Time

	// MaxResults caps the number of ids returned.
	MaxResults int
}

// MailSource is a mailbox that can be listed and read.
type MailSource interface {
	// Provider returns the provider type.
	Provider() model.ProviderType

	// List returns message ids, newest first.
	List(ctx context.Context, opts ListOptions) ([]string, error)

	// Fetch returns the full message with its part tree.
	Fetch(ctx context.Context, id string) (*model.RawMessage, error)
}
