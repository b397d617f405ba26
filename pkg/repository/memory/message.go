package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
)

type messageRepository struct {
	mu       sync.RWMutex
	messages map[types.MessageID]*model.ScheduledMessage
}

func newMessageRepository() *messageRepository {
	return &messageRepository{
		messages: make(map[types.MessageID]*model.ScheduledMessage),
	}
}

func copyMessage(m *model.ScheduledMessage) *model.ScheduledMessage {
	copied := *m
	if m.SentAt != nil {
		sentAt := *m.SentAt
		copied.SentAt = &sentAt
	}
	if m.FailedAt != nil {
		failedAt := *m.FailedAt
		copied.FailedAt = &failedAt
	}
	return &copied
}

func (r *messageRepository) Create(ctx context.Context, msg *model.ScheduledMessage) error {
	if err := msg.Validate(); err != nil {
		return goerr.Wrap(err, "invalid message")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages[msg.ID] = copyMessage(msg)
	return nil
}

func (r *messageRepository) Get(ctx context.Context, id types.MessageID) (*model.ScheduledMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.messages[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "message not found", goerr.V("messageID", id))
	}

	return copyMessage(msg), nil
}

func (r *messageRepository) ListByUser(ctx context.Context, userID types.SlackUserID, status types.DeliveryStatus, limit int) ([]*model.ScheduledMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*model.ScheduledMessage{}
	for _, msg := range r.messages {
		if msg.UserID != userID {
			continue
		}
		if status != "" && msg.Status != status {
			continue
		}
		result = append(result, copyMessage(msg))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledFor.After(result[j].ScheduledFor)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func (r *messageRepository) FindDue(ctx context.Context, now time.Time) ([]*model.ScheduledMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*model.ScheduledMessage{}
	for _, msg := range r.messages {
		if msg.IsDue(now) {
			result = append(result, copyMessage(msg))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledFor.Before(result[j].ScheduledFor)
	})

	return result, nil
}

// markSentLocked applies a sent transition. Records that are missing or
// already terminal are skipped, matching bulk-update-by-ID semantics.
func (r *messageRepository) markSentLocked(update model.SentUpdate) bool {
	msg, ok := r.messages[update.ID]
	if !ok || msg.Status.IsTerminal() {
		return false
	}

	msg.Sent = true
	sentAt := update.SentAt
	msg.SentAt = &sentAt
	msg.Status = types.DeliveryStatusSent
	msg.UpdatedAt = time.Now().UTC()
	return true
}

func (r *messageRepository) markFailedLocked(update model.FailedUpdate) bool {
	msg, ok := r.messages[update.ID]
	if !ok || msg.Status.IsTerminal() {
		return false
	}

	msg.Sent = false
	msg.Failed = true
	failedAt := update.FailedAt
	msg.FailedAt = &failedAt
	msg.FailureReason = update.Reason
	msg.Status = types.DeliveryStatusFailed
	msg.UpdatedAt = time.Now().UTC()
	return true
}

func (r *messageRepository) BulkMarkSent(ctx context.Context, updates []model.SentUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, update := range updates {
		r.markSentLocked(update)
	}
	return nil
}

func (r *messageRepository) BulkMarkFailed(ctx context.Context, updates []model.FailedUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, update := range updates {
		r.markFailedLocked(update)
	}
	return nil
}

func (r *messageRepository) MarkSent(ctx context.Context, update model.SentUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.markSentLocked(update) {
		return goerr.Wrap(ErrNotFound, "no pending message to mark sent", goerr.V("messageID", update.ID))
	}
	return nil
}

func (r *messageRepository) MarkFailed(ctx context.Context, update model.FailedUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.markFailedLocked(update) {
		return goerr.Wrap(ErrNotFound, "no pending message to mark failed", goerr.V("messageID", update.ID))
	}
	return nil
}

func (r *messageRepository) DeleteIfPending(ctx context.Context, id types.MessageID, userID types.SlackUserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.messages[id]
	if !ok || msg.UserID != userID || msg.Status != types.DeliveryStatusPending {
		return goerr.Wrap(ErrNotFound, "no pending message to delete",
			goerr.V("messageID", id), goerr.V("slackUserID", userID))
	}

	delete(r.messages, id)
	return nil
}
