package model

import (
	"time"

	"github.com/chronoslack/chronoslack/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// User holds the Slack credentials of an authenticated workspace user.
// The record is created on OAuth callback, rewritten whenever a token
// refresh or exchange succeeds, and removed on logout.
type User struct {
	SlackUserID types.SlackUserID
	SlackTeamID types.TeamID

	AccessToken string `masq:"secret"`
	// RefreshToken is empty until the long-lived token has been exchanged
	// for a rotatable pair. It rotates on every refresh.
	RefreshToken string `masq:"secret"`
	// TokenExpiresAt is an absolute instant so that the expiry estimate
	// survives process restarts.
	TokenExpiresAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the invariants of a credential record
func (x *User) Validate() error {
	if err := x.SlackUserID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid user")
	}
	if err := x.SlackTeamID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid user", goerr.V("slackUserID", x.SlackUserID))
	}
	if x.AccessToken == "" {
		return goerr.New("access token is required", goerr.V("slackUserID", x.SlackUserID))
	}
	if x.TokenExpiresAt.IsZero() {
		return goerr.New("token expiry is required", goerr.V("slackUserID", x.SlackUserID))
	}
	return nil
}

// HasRefreshToken reports whether a rotatable refresh token is on file.
// Without one, the only recovery path on expiry is a token exchange.
func (x *User) HasRefreshToken() bool {
	return x.RefreshToken != ""
}
