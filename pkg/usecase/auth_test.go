package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/chronoslack/chronoslack/pkg/domain/model/auth"
	"github.com/chronoslack/chronoslack/pkg/service/slack"
	"github.com/chronoslack/chronoslack/pkg/usecase"
)

func TestAuthUseCase_AuthURL(t *testing.T) {
	uc, _ := setupUseCases(t, &mockSlack{})

	url := uc.Auth.AuthURL("random-state")
	gt.B(t, strings.HasPrefix(url, "https://slack.com/oauth/v2/authorize?")).True()
	gt.B(t, strings.Contains(url, "client_id=test-client-id")).True()
	gt.B(t, strings.Contains(url, "state=random-state")).True()
	gt.B(t, strings.Contains(url, "user_scope=")).True()
}

func TestAuthUseCase_HandleCallback(t *testing.T) {
	ctx := context.Background()

	svc := &mockSlack{
		exchangeCode: func(ctx context.Context, code, redirectURI string) (*slack.TokenGrant, *slack.Identity, error) {
			gt.V(t, code).Equal("auth-code")
			gt.V(t, redirectURI).Equal("https://example.com/api/auth/callback")
			return &slack.TokenGrant{
					AccessToken:  "xoxe-user",
					RefreshToken: "xoxe-1-user",
					ExpiresIn:    43200,
				}, &slack.Identity{
					UserID:   "U1",
					TeamID:   "T1",
					TeamName: "Acme",
				}, nil
		},
	}
	uc, repo := setupUseCases(t, svc)

	session, err := uc.Auth.HandleCallback(ctx, "auth-code")
	gt.NoError(t, err).Required()
	gt.V(t, session.SlackUserID.String()).Equal("U1")
	gt.B(t, session.ID != "").True()
	gt.B(t, session.Secret != "").True()

	// Credential record is upserted from the grant
	user, err := repo.User().GetBySlackID(ctx, "U1")
	gt.NoError(t, err)
	gt.V(t, user.AccessToken).Equal("xoxe-user")
	gt.V(t, user.RefreshToken).Equal("xoxe-1-user")
	gt.B(t, user.TokenExpiresAt.After(time.Now().UTC().Add(11*time.Hour))).True()

	// Session round-trips through validation
	got, err := uc.Auth.ValidateSession(ctx, session.ID, session.Secret)
	gt.NoError(t, err)
	gt.V(t, got.SlackUserID).Equal(session.SlackUserID)
}

func TestAuthUseCase_HandleCallback_ExchangeFails(t *testing.T) {
	ctx := context.Background()

	svc := &mockSlack{
		exchangeCode: func(ctx context.Context, code, redirectURI string) (*slack.TokenGrant, *slack.Identity, error) {
			return nil, nil, errors.New("invalid_code")
		},
	}
	uc, _ := setupUseCases(t, svc)

	_, err := uc.Auth.HandleCallback(ctx, "bad-code")
	gt.Error(t, err)
}

func TestAuthUseCase_ValidateSession(t *testing.T) {
	ctx := context.Background()

	svc := &mockSlack{
		exchangeCode: func(ctx context.Context, code, redirectURI string) (*slack.TokenGrant, *slack.Identity, error) {
			return &slack.TokenGrant{AccessToken: "xoxe-user", ExpiresIn: 3600},
				&slack.Identity{UserID: "U1", TeamID: "T1"}, nil
		},
	}
	uc, _ := setupUseCases(t, svc)

	session, err := uc.Auth.HandleCallback(ctx, "auth-code")
	gt.NoError(t, err).Required()

	t.Run("wrong secret rejected", func(t *testing.T) {
		_, err := uc.Auth.ValidateSession(ctx, session.ID, "wrong-secret")
		gt.Error(t, err)
		gt.B(t, errors.Is(err, usecase.ErrInvalidSession)).True()
	})

	t.Run("unknown session rejected", func(t *testing.T) {
		_, err := uc.Auth.ValidateSession(ctx, auth.TokenID("nonexistent"), session.Secret)
		gt.Error(t, err)
		gt.B(t, errors.Is(err, usecase.ErrInvalidSession)).True()
	})
}

func TestAuthUseCase_Logout(t *testing.T) {
	ctx := context.Background()

	svc := &mockSlack{
		exchangeCode: func(ctx context.Context, code, redirectURI string) (*slack.TokenGrant, *slack.Identity, error) {
			return &slack.TokenGrant{AccessToken: "xoxe-user", ExpiresIn: 3600},
				&slack.Identity{UserID: "U1", TeamID: "T1"}, nil
		},
	}
	uc, repo := setupUseCases(t, svc)

	session, err := uc.Auth.HandleCallback(ctx, "auth-code")
	gt.NoError(t, err).Required()

	gt.NoError(t, uc.Auth.Logout(ctx, session.ID))

	// Session and credentials are both gone
	_, err = uc.Auth.ValidateSession(ctx, session.ID, session.Secret)
	gt.Error(t, err)

	_, err = repo.User().GetBySlackID(ctx, "U1")
	gt.Error(t, err)

	// Logging out twice is fine
	gt.NoError(t, uc.Auth.Logout(ctx, session.ID))
}
