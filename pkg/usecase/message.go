package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chronoslack/chronoslack/pkg/domain/interfaces"
	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
	"github.com/chronoslack/chronoslack/pkg/service/slack"
	"github.com/chronoslack/chronoslack/pkg/service/token"
	"github.com/chronoslack/chronoslack/pkg/utils/logging"
)

// DefaultListLimit bounds message listings when the caller does not
// specify a limit
const DefaultListLimit = 100

// MessageUseCase covers the user-facing message operations: schedule,
// list, cancel, immediate send, and channel discovery. Background
// delivery of due messages belongs to the worker, not here.
type MessageUseCase struct {
	repo   interfaces.Repository
	slack  slack.Service
	tokens *token.Manager
}

func NewMessageUseCase(repo interfaces.Repository, slackSvc slack.Service, tokens *token.Manager) *MessageUseCase {
	return &MessageUseCase{
		repo:   repo,
		slack:  slackSvc,
		tokens: tokens,
	}
}

// Schedule queues a message for future delivery. The owner must have a
// credential record; scheduling without one would only produce a message
// that fails on its first attempt.
func (uc *MessageUseCase) Schedule(ctx context.Context, userID types.SlackUserID, channelID, channelName, body string, scheduledFor time.Time) (*model.ScheduledMessage, error) {
	if _, err := uc.repo.User().GetBySlackID(ctx, userID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrUserNotFound, "cannot schedule without credentials",
				goerr.V("slackUserID", userID))
		}
		return nil, goerr.Wrap(err, "failed to load user", goerr.V("slackUserID", userID))
	}

	msg := model.NewScheduledMessage(userID, channelID, channelName, body, scheduledFor.UTC())
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if err := uc.repo.Message().Create(ctx, msg); err != nil {
		return nil, goerr.Wrap(err, "failed to store scheduled message", goerr.V("messageID", msg.ID))
	}

	logging.From(ctx).Info("message scheduled",
		"messageID", msg.ID,
		"slackUserID", userID,
		"channelID", channelID,
		"scheduledFor", msg.ScheduledFor)

	return msg, nil
}

// List returns the user's messages, newest schedule first. status
// filters to one delivery state when non-empty. limit <= 0 applies
// DefaultListLimit.
func (uc *MessageUseCase) List(ctx context.Context, userID types.SlackUserID, status types.DeliveryStatus, limit int) ([]*model.ScheduledMessage, error) {
	if status != "" {
		if err := status.Validate(); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	msgs, err := uc.repo.Message().ListByUser(ctx, userID, status, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages", goerr.V("slackUserID", userID))
	}

	return msgs, nil
}

// Cancel deletes a pending message owned by the user. Messages that
// already reached a terminal state cannot be cancelled.
func (uc *MessageUseCase) Cancel(ctx context.Context, id types.MessageID, userID types.SlackUserID) error {
	if err := uc.repo.Message().DeleteIfPending(ctx, id, userID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return goerr.Wrap(ErrMessageNotFound, "no pending message to cancel",
				goerr.V("messageID", id), goerr.V("slackUserID", userID))
		}
		return goerr.Wrap(err, "failed to cancel message", goerr.V("messageID", id))
	}

	logging.From(ctx).Info("message cancelled", "messageID", id, "slackUserID", userID)

	return nil
}

// SendNow delivers a pending message immediately instead of waiting for
// its scheduled time. The outcome is recorded the same way the worker
// records it, so the periodic loop will not pick the message up again.
func (uc *MessageUseCase) SendNow(ctx context.Context, id types.MessageID, userID types.SlackUserID) (*model.ScheduledMessage, error) {
	msg, err := uc.repo.Message().Get(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrMessageNotFound, "message does not exist", goerr.V("messageID", id))
		}
		return nil, goerr.Wrap(err, "failed to load message", goerr.V("messageID", id))
	}

	if msg.UserID != userID {
		// Do not reveal foreign messages
		return nil, goerr.Wrap(ErrMessageNotFound, "message owned by another user",
			goerr.V("messageID", id), goerr.V("slackUserID", userID))
	}

	if msg.Status.IsTerminal() {
		return nil, goerr.Wrap(ErrMessageNotPending, "message already settled",
			goerr.V("messageID", id), goerr.V("status", msg.Status))
	}

	now := time.Now().UTC()

	accessToken, err := uc.tokens.ValidAccessToken(ctx, userID)
	if err == nil {
		err = uc.slack.PostMessage(ctx, accessToken, msg.ChannelID, msg.Body)
	}

	if err != nil {
		update := model.FailedUpdate{ID: id, FailedAt: now, Reason: err.Error()}
		if markErr := uc.repo.Message().MarkFailed(ctx, update); markErr != nil {
			logging.From(ctx).Error("failed to record send failure",
				"messageID", id, "error", markErr.Error())
		}
		msg.Status = types.DeliveryStatusFailed
		msg.Failed = true
		msg.FailedAt = &now
		msg.FailureReason = err.Error()
		msg.UpdatedAt = now
		return msg, goerr.Wrap(err, "immediate send failed", goerr.V("messageID", id))
	}

	update := model.SentUpdate{ID: id, SentAt: now}
	if err := uc.repo.Message().MarkSent(ctx, update); err != nil {
		// Delivered but not recorded; the worker may attempt a duplicate
		// delivery on a later tick
		return nil, goerr.Wrap(err, "message delivered but not recorded", goerr.V("messageID", id))
	}

	msg.Status = types.DeliveryStatusSent
	msg.Sent = true
	msg.SentAt = &now
	msg.UpdatedAt = now

	logging.From(ctx).Info("message sent immediately", "messageID", id, "slackUserID", userID)

	return msg, nil
}

// ListChannels returns the channels the user can post to
func (uc *MessageUseCase) ListChannels(ctx context.Context, userID types.SlackUserID) ([]slack.Channel, error) {
	accessToken, err := uc.tokens.ValidAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	channels, err := uc.slack.ListChannels(ctx, accessToken)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list channels", goerr.V("slackUserID", userID))
	}

	return channels, nil
}
