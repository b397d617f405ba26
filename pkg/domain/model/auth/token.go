package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/chronoslack/chronoslack/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// TokenID identifies a browser session token
type TokenID string

// TokenSecret is the secret half of a session token pair
type TokenSecret string

// DefaultTokenLifetime is how long a browser session stays valid
const DefaultTokenLifetime = 7 * 24 * time.Hour

// Token is an opaque session record stored in the repository. The ID and
// Secret travel in separate cookies; both must match on every request.
type Token struct {
	ID     TokenID
	Secret TokenSecret `masq:"secret"`

	SlackUserID types.SlackUserID
	SlackTeamID types.TeamID

	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewToken creates a session token for the given Slack user
func NewToken(userID types.SlackUserID, teamID types.TeamID) *Token {
	now := time.Now().UTC()
	return &Token{
		ID:          TokenID(randomHex(16)),
		Secret:      TokenSecret(randomHex(32)),
		SlackUserID: userID,
		SlackTeamID: teamID,
		ExpiresAt:   now.Add(DefaultTokenLifetime),
		CreatedAt:   now,
	}
}

// Validate checks if the token record is well-formed
func (x *Token) Validate() error {
	if err := x.ID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid token")
	}
	if x.Secret == "" {
		return goerr.New("token secret cannot be empty", goerr.V("tokenID", x.ID))
	}
	if err := x.SlackUserID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid token", goerr.V("tokenID", x.ID))
	}
	return nil
}

// IsExpired reports whether the session has passed its expiry
func (x *Token) IsExpired(now time.Time) bool {
	return !now.Before(x.ExpiresAt)
}

// MatchSecret compares the given secret in constant time
func (x *Token) MatchSecret(secret TokenSecret) bool {
	return subtle.ConstantTimeCompare([]byte(x.Secret), []byte(secret)) == 1
}

// Validate checks if the TokenID is valid
func (x TokenID) Validate() error {
	if x == "" {
		return goerr.New("token ID cannot be empty")
	}
	return nil
}

// String returns the string representation of TokenID
func (x TokenID) String() string {
	return string(x)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf)
}
