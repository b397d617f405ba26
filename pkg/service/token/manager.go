package token

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/singleflight"

	"github.com/chronoslack/chronoslack/pkg/domain/interfaces"
	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
	"github.com/chronoslack/chronoslack/pkg/service/slack"
	"github.com/chronoslack/chronoslack/pkg/utils/logging"
)

var (
	// ErrUserNotFound means no credential record exists for the user.
	// Terminal for the calling operation; the user must re-authenticate.
	ErrUserNotFound = errors.New("user not found")

	// ErrReauthRequired means token refresh/exchange is exhausted.
	// Terminal for the current delivery attempt; never retried in-tick.
	ErrReauthRequired = errors.New("token refresh failed, re-authentication required")
)

const (
	// DefaultExpiryMargin treats a token as expired slightly early so it
	// cannot lapse mid-flight during the external call
	DefaultExpiryMargin = 5 * time.Minute

	// DefaultExpiresIn is assumed when Slack omits expires_in
	DefaultExpiresIn = 3600
)

// Manager resolves a currently valid access token for a user,
// transparently refreshing or exchanging rotatable tokens. Every call
// may write the credential record. Refresh and exchange are serialized
// per user through singleflight so concurrent deliveries cannot clobber
// a freshly rotated refresh token with a stale one.
type Manager struct {
	repo  interfaces.Repository
	slack slack.Service

	margin       time.Duration
	liveValidate bool
	now          func() time.Time

	group singleflight.Group
}

// Option is a functional option for Manager configuration
type Option func(*Manager)

// WithExpiryMargin overrides the early-expiry safety margin
func WithExpiryMargin(margin time.Duration) Option {
	return func(m *Manager) {
		m.margin = margin
	}
}

// WithoutLiveValidation skips the auth.test round trip for tokens that
// look fresh locally. Local expiry then becomes the only expiry signal.
func WithoutLiveValidation() Option {
	return func(m *Manager) {
		m.liveValidate = false
	}
}

// WithClock overrides the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New creates a token manager
func New(repo interfaces.Repository, slackSvc slack.Service, opts ...Option) *Manager {
	m := &Manager{
		repo:         repo,
		slack:        slackSvc,
		margin:       DefaultExpiryMargin,
		liveValidate: true,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// ValidAccessToken returns an access token that is safe to use right
// now, rotating the stored credentials when needed
func (m *Manager) ValidAccessToken(ctx context.Context, userID types.SlackUserID) (string, error) {
	v, err, _ := m.group.Do(userID.String(), func() (any, error) {
		return m.validAccessToken(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) validAccessToken(ctx context.Context, userID types.SlackUserID) (string, error) {
	user, err := m.repo.User().GetBySlackID(ctx, userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return "", goerr.Wrap(ErrUserNotFound, "no credentials on file", goerr.V("slackUserID", userID))
		}
		return "", goerr.Wrap(err, "failed to load credentials", goerr.V("slackUserID", userID))
	}

	now := m.now().UTC()

	// Two independent expiry signals: the local timestamp (with margin)
	// and, for locally fresh tokens, a live auth.test probe, because the
	// provider may revoke a token before its expiry.
	if user.TokenExpiresAt.After(now.Add(m.margin)) {
		if !m.liveValidate {
			return user.AccessToken, nil
		}
		if err := m.slack.ValidateToken(ctx, user.AccessToken); err == nil {
			return user.AccessToken, nil
		}
		logging.From(ctx).Info("stored token rejected by auth.test, rotating",
			"slackUserID", userID)
	}

	return m.rotate(ctx, user)
}

// rotate obtains fresh token material, persists it, and returns the new
// access token. Without a refresh token on file the only recovery path
// is the one-time long-lived token exchange.
func (m *Manager) rotate(ctx context.Context, user *model.User) (string, error) {
	var grant *slack.TokenGrant
	var err error

	if user.HasRefreshToken() {
		grant, err = m.slack.Refresh(ctx, user.RefreshToken)
		if err != nil {
			return "", goerr.Wrap(ErrReauthRequired, "token refresh failed",
				goerr.V("slackUserID", user.SlackUserID), goerr.V("cause", err.Error()))
		}
	} else {
		grant, err = m.slack.ExchangeLongLivedToken(ctx, user.AccessToken)
		if err != nil {
			return "", goerr.Wrap(ErrReauthRequired, "long-lived token exchange failed",
				goerr.V("slackUserID", user.SlackUserID), goerr.V("cause", err.Error()))
		}
	}

	expiresIn := grant.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}

	now := m.now().UTC()
	user.AccessToken = grant.AccessToken
	// The refresh token rotates on every use; the old one is dead
	user.RefreshToken = grant.RefreshToken
	user.TokenExpiresAt = now.Add(time.Duration(expiresIn) * time.Second)
	user.UpdatedAt = now

	if err := m.repo.User().Save(ctx, user); err != nil {
		return "", goerr.Wrap(err, "failed to persist rotated tokens",
			goerr.V("slackUserID", user.SlackUserID))
	}

	logging.From(ctx).Info("rotated Slack tokens",
		"slackUserID", user.SlackUserID,
		"expiresAt", user.TokenExpiresAt)

	return user.AccessToken, nil
}
