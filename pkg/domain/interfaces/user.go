package interfaces

import (
	"context"

	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
)

// UserRepository provides database operations for Slack credential records
type UserRepository interface {
	// GetBySlackID retrieves the credential record for a Slack user.
	// Returns the backend's ErrNotFound when no record exists.
	GetBySlackID(ctx context.Context, id types.SlackUserID) (*model.User, error)

	// Save upserts a credential record. Called from the OAuth callback and
	// from every successful token refresh/exchange.
	Save(ctx context.Context, user *model.User) error

	// Delete removes the credential record (logout)
	Delete(ctx context.Context, id types.SlackUserID) error
}
