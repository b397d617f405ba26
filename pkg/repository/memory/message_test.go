package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
	"github.com/chronoslack/chronoslack/pkg/repository/memory"
)

func newTestMessage(userID types.SlackUserID, scheduledFor time.Time) *model.ScheduledMessage {
	return model.NewScheduledMessage(userID, "C0123456789", "general", "hello", scheduledFor)
}

func TestMessageRepository_FindDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()

	past := newTestMessage("U1", now.Add(-time.Minute))
	exact := newTestMessage("U1", now)
	future := newTestMessage("U1", now.Add(time.Minute))

	gt.NoError(t, repo.Message().Create(ctx, past))
	gt.NoError(t, repo.Message().Create(ctx, exact))
	gt.NoError(t, repo.Message().Create(ctx, future))

	due, err := repo.Message().FindDue(ctx, now)
	gt.NoError(t, err)
	gt.A(t, due).Length(2)

	// Ordered by schedule, earliest first
	gt.V(t, due[0].ID).Equal(past.ID)
	gt.V(t, due[1].ID).Equal(exact.ID)
}

func TestMessageRepository_FindDueExcludesTerminal(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()

	sent := newTestMessage("U1", now.Add(-time.Hour))
	failed := newTestMessage("U1", now.Add(-time.Hour))
	pending := newTestMessage("U1", now.Add(-time.Hour))

	for _, msg := range []*model.ScheduledMessage{sent, failed, pending} {
		gt.NoError(t, repo.Message().Create(ctx, msg))
	}

	gt.NoError(t, repo.Message().MarkSent(ctx, model.SentUpdate{ID: sent.ID, SentAt: now}))
	gt.NoError(t, repo.Message().MarkFailed(ctx, model.FailedUpdate{ID: failed.ID, FailedAt: now, Reason: "channel_not_found"}))

	due, err := repo.Message().FindDue(ctx, now)
	gt.NoError(t, err)
	gt.A(t, due).Length(1)
	gt.V(t, due[0].ID).Equal(pending.ID)
}

func TestMessageRepository_MarkSent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()
	msg := newTestMessage("U1", now)
	gt.NoError(t, repo.Message().Create(ctx, msg))

	sentAt := now.Add(time.Minute)
	gt.NoError(t, repo.Message().MarkSent(ctx, model.SentUpdate{ID: msg.ID, SentAt: sentAt}))

	got, err := repo.Message().Get(ctx, msg.ID)
	gt.NoError(t, err)
	gt.V(t, got.Status).Equal(types.DeliveryStatusSent)
	gt.B(t, got.Sent).True()
	gt.V(t, *got.SentAt).Equal(sentAt)

	// Terminal transitions happen once; a second write is rejected
	gt.Error(t, repo.Message().MarkFailed(ctx, model.FailedUpdate{ID: msg.ID, FailedAt: sentAt, Reason: "late"}))

	got, err = repo.Message().Get(ctx, msg.ID)
	gt.NoError(t, err)
	gt.V(t, got.Status).Equal(types.DeliveryStatusSent)
}

func TestMessageRepository_BulkMarkFailed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()
	a := newTestMessage("U1", now)
	b := newTestMessage("U1", now)
	gt.NoError(t, repo.Message().Create(ctx, a))
	gt.NoError(t, repo.Message().Create(ctx, b))

	// Each record carries its own timestamp and reason
	updates := []model.FailedUpdate{
		{ID: a.ID, FailedAt: now.Add(time.Second), Reason: "not_in_channel"},
		{ID: b.ID, FailedAt: now.Add(2 * time.Second), Reason: "invalid_auth"},
	}
	gt.NoError(t, repo.Message().BulkMarkFailed(ctx, updates))

	gotA, err := repo.Message().Get(ctx, a.ID)
	gt.NoError(t, err)
	gt.V(t, gotA.Status).Equal(types.DeliveryStatusFailed)
	gt.V(t, gotA.FailureReason).Equal("not_in_channel")
	gt.V(t, *gotA.FailedAt).Equal(now.Add(time.Second))

	gotB, err := repo.Message().Get(ctx, b.ID)
	gt.NoError(t, err)
	gt.V(t, gotB.FailureReason).Equal("invalid_auth")
}

func TestMessageRepository_ListByUser(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()

	first := newTestMessage("U1", now.Add(time.Hour))
	second := newTestMessage("U1", now.Add(2*time.Hour))
	other := newTestMessage("U2", now.Add(time.Hour))

	for _, msg := range []*model.ScheduledMessage{first, second, other} {
		gt.NoError(t, repo.Message().Create(ctx, msg))
	}
	gt.NoError(t, repo.Message().MarkSent(ctx, model.SentUpdate{ID: first.ID, SentAt: now}))

	t.Run("all statuses, newest schedule first", func(t *testing.T) {
		msgs, err := repo.Message().ListByUser(ctx, "U1", "", 0)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(2)
		gt.V(t, msgs[0].ID).Equal(second.ID)
		gt.V(t, msgs[1].ID).Equal(first.ID)
	})

	t.Run("status filter", func(t *testing.T) {
		msgs, err := repo.Message().ListByUser(ctx, "U1", types.DeliveryStatusPending, 0)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(1)
		gt.V(t, msgs[0].ID).Equal(second.ID)
	})

	t.Run("limit", func(t *testing.T) {
		msgs, err := repo.Message().ListByUser(ctx, "U1", "", 1)
		gt.NoError(t, err)
		gt.A(t, msgs).Length(1)
		gt.V(t, msgs[0].ID).Equal(second.ID)
	})
}

func TestMessageRepository_DeleteIfPending(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()

	t.Run("deletes pending message", func(t *testing.T) {
		msg := newTestMessage("U1", now)
		gt.NoError(t, repo.Message().Create(ctx, msg))
		gt.NoError(t, repo.Message().DeleteIfPending(ctx, msg.ID, "U1"))

		_, err := repo.Message().Get(ctx, msg.ID)
		gt.Error(t, err)
	})

	t.Run("rejects foreign owner", func(t *testing.T) {
		msg := newTestMessage("U1", now)
		gt.NoError(t, repo.Message().Create(ctx, msg))
		gt.Error(t, repo.Message().DeleteIfPending(ctx, msg.ID, "U2"))

		_, err := repo.Message().Get(ctx, msg.ID)
		gt.NoError(t, err)
	})

	t.Run("rejects terminal message", func(t *testing.T) {
		msg := newTestMessage("U1", now)
		gt.NoError(t, repo.Message().Create(ctx, msg))
		gt.NoError(t, repo.Message().MarkSent(ctx, model.SentUpdate{ID: msg.ID, SentAt: now}))
		gt.Error(t, repo.Message().DeleteIfPending(ctx, msg.ID, "U1"))
	})
}
