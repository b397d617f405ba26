package usecase

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chronoslack/chronoslack/pkg/domain/interfaces"
	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/model/auth"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
	"github.com/chronoslack/chronoslack/pkg/service/slack"
	"github.com/chronoslack/chronoslack/pkg/service/token"
	"github.com/chronoslack/chronoslack/pkg/utils/logging"
)

// UserScopes are the Slack user scopes requested on authorization.
// chat:write posts as the user; channels:read lists their channels.
const UserScopes = "chat:write,channels:read"

// AuthConfig carries the OAuth app settings the auth flow needs
type AuthConfig struct {
	ClientID    string
	CallbackURL string
}

// AuthUseCase runs the Slack OAuth flow and manages browser sessions.
// Completing the flow stores the user's token material; the delivery
// worker uses it later without any session involvement.
type AuthUseCase struct {
	repo  interfaces.Repository
	slack slack.Service
	cfg   AuthConfig
}

func NewAuthUseCase(repo interfaces.Repository, slackSvc slack.Service, cfg AuthConfig) *AuthUseCase {
	return &AuthUseCase{
		repo:  repo,
		slack: slackSvc,
		cfg:   cfg,
	}
}

// AuthURL returns the Slack authorization URL to redirect the browser to
func (uc *AuthUseCase) AuthURL(state string) string {
	params := url.Values{}
	params.Set("client_id", uc.cfg.ClientID)
	params.Set("user_scope", UserScopes)
	params.Set("redirect_uri", uc.cfg.CallbackURL)
	params.Set("state", state)

	return "https://slack.com/oauth/v2/authorize?" + params.Encode()
}

// HandleCallback exchanges the authorization code, upserts the user's
// credential record, and opens a browser session
func (uc *AuthUseCase) HandleCallback(ctx context.Context, code string) (*auth.Token, error) {
	grant, identity, err := uc.slack.ExchangeCode(ctx, code, uc.cfg.CallbackURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to exchange authorization code")
	}

	userID := types.SlackUserID(identity.UserID)
	teamID := types.TeamID(identity.TeamID)

	now := time.Now().UTC()
	user, err := uc.repo.User().GetBySlackID(ctx, userID)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(err, "failed to load user", goerr.V("slackUserID", userID))
		}
		user = &model.User{
			SlackUserID: userID,
			SlackTeamID: teamID,
			CreatedAt:   now,
		}
	}

	expiresIn := grant.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = token.DefaultExpiresIn
	}

	user.SlackTeamID = teamID
	user.AccessToken = grant.AccessToken
	user.RefreshToken = grant.RefreshToken
	user.TokenExpiresAt = now.Add(time.Duration(expiresIn) * time.Second)
	user.UpdatedAt = now

	if err := uc.repo.User().Save(ctx, user); err != nil {
		return nil, goerr.Wrap(err, "failed to store user credentials", goerr.V("slackUserID", userID))
	}

	session := auth.NewToken(userID, teamID)
	if err := uc.repo.PutToken(ctx, session); err != nil {
		return nil, goerr.Wrap(err, "failed to store session token", goerr.V("slackUserID", userID))
	}

	logging.From(ctx).Info("user authorized",
		"slackUserID", userID,
		"teamID", teamID,
		"teamName", identity.TeamName)

	return session, nil
}

// ValidateSession checks the session cookie pair and returns the session
// record when both halves match and the session has not expired
func (uc *AuthUseCase) ValidateSession(ctx context.Context, tokenID auth.TokenID, secret auth.TokenSecret) (*auth.Token, error) {
	session, err := uc.repo.GetToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrInvalidSession, "unknown session", goerr.V("tokenID", tokenID))
		}
		return nil, goerr.Wrap(err, "failed to load session", goerr.V("tokenID", tokenID))
	}

	if !session.MatchSecret(secret) {
		return nil, goerr.Wrap(ErrInvalidSession, "session secret mismatch", goerr.V("tokenID", tokenID))
	}

	if session.IsExpired(time.Now().UTC()) {
		if err := uc.repo.DeleteToken(ctx, tokenID); err != nil {
			logging.From(ctx).Warn("failed to delete expired session",
				"tokenID", tokenID, "error", err.Error())
		}
		return nil, goerr.Wrap(ErrSessionExpired, "session expired", goerr.V("tokenID", tokenID))
	}

	return session, nil
}

// Logout closes the browser session and removes the user's stored Slack
// credentials. Pending scheduled messages are left in place; without
// credentials their delivery attempts fail until the user authorizes
// again.
func (uc *AuthUseCase) Logout(ctx context.Context, tokenID auth.TokenID) error {
	session, err := uc.repo.GetToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil
		}
		return goerr.Wrap(err, "failed to load session", goerr.V("tokenID", tokenID))
	}

	if err := uc.repo.DeleteToken(ctx, tokenID); err != nil {
		return goerr.Wrap(err, "failed to delete session", goerr.V("tokenID", tokenID))
	}

	if err := uc.repo.User().Delete(ctx, session.SlackUserID); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return goerr.Wrap(err, "failed to delete user credentials",
			goerr.V("slackUserID", session.SlackUserID))
	}

	logging.From(ctx).Info("user logged out", "slackUserID", session.SlackUserID)

	return nil
}
