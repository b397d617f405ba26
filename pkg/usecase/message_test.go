package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/chronoslack/chronoslack/pkg/domain/interfaces"
	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
	"github.com/chronoslack/chronoslack/pkg/repository/memory"
	"github.com/chronoslack/chronoslack/pkg/service/slack"
	"github.com/chronoslack/chronoslack/pkg/service/token"
	"github.com/chronoslack/chronoslack/pkg/usecase"
)

type mockSlack struct {
	mu       sync.Mutex
	posted   []string
	postErr  error
	channels []slack.Channel

	exchangeCode func(ctx context.Context, code, redirectURI string) (*slack.TokenGrant, *slack.Identity, error)
}

func (m *mockSlack) ExchangeCode(ctx context.Context, code, redirectURI string) (*slack.TokenGrant, *slack.Identity, error) {
	if m.exchangeCode == nil {
		return nil, nil, errors.New("not implemented")
	}
	return m.exchangeCode(ctx, code, redirectURI)
}

func (m *mockSlack) ExchangeLongLivedToken(ctx context.Context, accessToken string) (*slack.TokenGrant, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSlack) Refresh(ctx context.Context, refreshToken string) (*slack.TokenGrant, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSlack) ValidateToken(ctx context.Context, accessToken string) error {
	return nil
}

func (m *mockSlack) ListChannels(ctx context.Context, accessToken string) ([]slack.Channel, error) {
	return m.channels, nil
}

func (m *mockSlack) PostMessage(ctx context.Context, accessToken, channelID, text string) error {
	if m.postErr != nil {
		return m.postErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, channelID)
	return nil
}

func setupUseCases(t *testing.T, svc *mockSlack) (*usecase.UseCases, interfaces.Repository) {
	t.Helper()

	repo := memory.New()
	tokens := token.New(repo, svc, token.WithoutLiveValidation())

	uc := usecase.New(repo, svc, tokens, usecase.AuthConfig{
		ClientID:    "test-client-id",
		CallbackURL: "https://example.com/api/auth/callback",
	})
	return uc, repo
}

func saveTestUser(t *testing.T, repo interfaces.Repository, userID types.SlackUserID) {
	t.Helper()
	gt.NoError(t, repo.User().Save(context.Background(), &model.User{
		SlackUserID:    userID,
		SlackTeamID:    "T1",
		AccessToken:    "xoxe-" + userID.String(),
		TokenExpiresAt: time.Now().UTC().Add(time.Hour),
	})).Required()
}

func TestMessageUseCase_Schedule(t *testing.T) {
	ctx := context.Background()
	scheduledFor := time.Now().UTC().Add(time.Hour)

	t.Run("successful scheduling", func(t *testing.T) {
		uc, repo := setupUseCases(t, &mockSlack{})
		saveTestUser(t, repo, "U1")

		msg, err := uc.Message.Schedule(ctx, "U1", "C1", "general", "hello", scheduledFor)
		gt.NoError(t, err)
		gt.V(t, msg.Status).Equal(types.DeliveryStatusPending)
		gt.B(t, msg.ID != "").True()

		stored, err := repo.Message().Get(ctx, msg.ID)
		gt.NoError(t, err)
		gt.V(t, stored.Body).Equal("hello")
	})

	t.Run("unknown user fails", func(t *testing.T) {
		uc, _ := setupUseCases(t, &mockSlack{})

		_, err := uc.Message.Schedule(ctx, "U-missing", "C1", "general", "hello", scheduledFor)
		gt.Error(t, err)
		gt.B(t, errors.Is(err, usecase.ErrUserNotFound)).True()
	})

	t.Run("empty body fails", func(t *testing.T) {
		uc, repo := setupUseCases(t, &mockSlack{})
		saveTestUser(t, repo, "U1")

		_, err := uc.Message.Schedule(ctx, "U1", "C1", "general", "", scheduledFor)
		gt.Error(t, err)
	})
}

func TestMessageUseCase_List(t *testing.T) {
	ctx := context.Background()

	uc, repo := setupUseCases(t, &mockSlack{})
	saveTestUser(t, repo, "U1")

	base := time.Now().UTC().Add(time.Hour)
	for i := 0; i < 3; i++ {
		_, err := uc.Message.Schedule(ctx, "U1", "C1", "general", "hello", base.Add(time.Duration(i)*time.Minute))
		gt.NoError(t, err).Required()
	}

	t.Run("lists own messages", func(t *testing.T) {
		msgs, err := uc.Message.List(ctx, "U1", "", 0)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(3)
	})

	t.Run("invalid status fails", func(t *testing.T) {
		_, err := uc.Message.List(ctx, "U1", types.DeliveryStatus("bogus"), 0)
		gt.Error(t, err)
	})

	t.Run("other user sees nothing", func(t *testing.T) {
		msgs, err := uc.Message.List(ctx, "U2", "", 0)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(0)
	})
}

func TestMessageUseCase_Cancel(t *testing.T) {
	ctx := context.Background()

	uc, repo := setupUseCases(t, &mockSlack{})
	saveTestUser(t, repo, "U1")

	msg, err := uc.Message.Schedule(ctx, "U1", "C1", "general", "hello", time.Now().UTC().Add(time.Hour))
	gt.NoError(t, err).Required()

	t.Run("foreign owner cannot cancel", func(t *testing.T) {
		err := uc.Message.Cancel(ctx, msg.ID, "U2")
		gt.Error(t, err)
		gt.B(t, errors.Is(err, usecase.ErrMessageNotFound)).True()
	})

	t.Run("owner cancels pending message", func(t *testing.T) {
		gt.NoError(t, uc.Message.Cancel(ctx, msg.ID, "U1"))

		_, err := repo.Message().Get(ctx, msg.ID)
		gt.Error(t, err)
	})

	t.Run("cancelling again reports not found", func(t *testing.T) {
		err := uc.Message.Cancel(ctx, msg.ID, "U1")
		gt.B(t, errors.Is(err, usecase.ErrMessageNotFound)).True()
	})
}

func TestMessageUseCase_SendNow(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers and records sent", func(t *testing.T) {
		svc := &mockSlack{}
		uc, repo := setupUseCases(t, svc)
		saveTestUser(t, repo, "U1")

		msg, err := uc.Message.Schedule(ctx, "U1", "C1", "general", "hello", time.Now().UTC().Add(time.Hour))
		gt.NoError(t, err).Required()

		sent, err := uc.Message.SendNow(ctx, msg.ID, "U1")
		gt.NoError(t, err)
		gt.V(t, sent.Status).Equal(types.DeliveryStatusSent)
		gt.A(t, svc.posted).Length(1)

		// The worker must not pick it up again
		due, err := repo.Message().FindDue(ctx, time.Now().UTC().Add(2*time.Hour))
		gt.NoError(t, err)
		gt.A(t, due).Length(0)
	})

	t.Run("failure is recorded", func(t *testing.T) {
		svc := &mockSlack{postErr: errors.New("is_archived")}
		uc, repo := setupUseCases(t, svc)
		saveTestUser(t, repo, "U1")

		msg, err := uc.Message.Schedule(ctx, "U1", "C1", "general", "hello", time.Now().UTC().Add(time.Hour))
		gt.NoError(t, err).Required()

		failed, err := uc.Message.SendNow(ctx, msg.ID, "U1")
		gt.Error(t, err)
		gt.V(t, failed.Status).Equal(types.DeliveryStatusFailed)

		stored, err := repo.Message().Get(ctx, msg.ID)
		gt.NoError(t, err)
		gt.V(t, stored.Status).Equal(types.DeliveryStatusFailed)
		gt.V(t, stored.FailureReason).Equal("is_archived")
	})

	t.Run("terminal message is rejected", func(t *testing.T) {
		svc := &mockSlack{}
		uc, repo := setupUseCases(t, svc)
		saveTestUser(t, repo, "U1")

		msg, err := uc.Message.Schedule(ctx, "U1", "C1", "general", "hello", time.Now().UTC().Add(time.Hour))
		gt.NoError(t, err).Required()

		_, err = uc.Message.SendNow(ctx, msg.ID, "U1")
		gt.NoError(t, err).Required()

		_, err = uc.Message.SendNow(ctx, msg.ID, "U1")
		gt.Error(t, err)
		gt.B(t, errors.Is(err, usecase.ErrMessageNotPending)).True()
	})
}

func TestMessageUseCase_ListChannels(t *testing.T) {
	ctx := context.Background()

	svc := &mockSlack{channels: []slack.Channel{
		{ID: "C1", Name: "general"},
		{ID: "C2", Name: "dev"},
	}}
	uc, repo := setupUseCases(t, svc)
	saveTestUser(t, repo, "U1")

	channels, err := uc.Message.ListChannels(ctx, "U1")
	gt.NoError(t, err)
	gt.A(t, channels).Length(2)

	_, err = uc.Message.ListChannels(ctx, "U-missing")
	gt.Error(t, err)
	gt.B(t, errors.Is(err, token.ErrUserNotFound)).True()
}
