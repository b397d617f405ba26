package slack

import (
	"context"
)

// Service provides the Slack API surface the delivery engine depends on.
// All methods take the per-user access token explicitly; this service
// holds only the app credentials (client ID/secret) needed for the OAuth
// token endpoints.
type Service interface {
	// ExchangeCode exchanges an OAuth authorization code for a user token
	// grant and the identity of the authorizing user
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenGrant, *Identity, error)

	// ExchangeLongLivedToken trades a non-rotatable long-lived access
	// token for a rotatable access+refresh pair. Required once when token
	// rotation is enabled on the Slack app.
	ExchangeLongLivedToken(ctx context.Context, accessToken string) (*TokenGrant, error)

	// Refresh rotates a refresh token. The returned grant carries a NEW
	// refresh token; the old one is invalid after this call.
	Refresh(ctx context.Context, refreshToken string) (*TokenGrant, error)

	// ValidateToken checks the access token against auth.test
	ValidateToken(ctx context.Context, accessToken string) error

	// ListChannels retrieves the channels the user is a member of
	ListChannels(ctx context.Context, accessToken string) ([]Channel, error)

	// PostMessage posts a plain text message to a channel
	PostMessage(ctx context.Context, accessToken, channelID, text string) error
}

// TokenGrant is the token material returned by Slack's OAuth endpoints
type TokenGrant struct {
	AccessToken  string `masq:"secret"`
	RefreshToken string `masq:"secret"`
	// ExpiresIn is the remaining validity in seconds. Zero means Slack
	// did not report an expiry (rotation disabled).
	ExpiresIn int
}

// Identity describes the user who completed the OAuth flow
type Identity struct {
	UserID   string
	TeamID   string
	TeamName string
}

// Channel represents a Slack channel
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
