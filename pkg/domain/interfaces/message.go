package interfaces

import (
	"context"
	"time"

	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
)

// MessageRepository provides database operations for scheduled messages.
//
// Terminal writes are bulk-first: the delivery worker reconciles a whole
// tick with BulkMarkSent/BulkMarkFailed and only falls back to the
// single-record Mark methods when a bulk write fails. Each record in a
// bulk batch carries its own timestamp and reason.
type MessageRepository interface {
	// Create stores a new pending message
	Create(ctx context.Context, msg *model.ScheduledMessage) error

	// Get retrieves a single message by ID
	Get(ctx context.Context, id types.MessageID) (*model.ScheduledMessage, error)

	// ListByUser retrieves messages owned by a user, newest schedule
	// first. status filters to a single delivery state when non-empty.
	// limit <= 0 means no limit.
	ListByUser(ctx context.Context, userID types.SlackUserID, status types.DeliveryStatus, limit int) ([]*model.ScheduledMessage, error)

	// FindDue retrieves messages with scheduledFor <= now that are still
	// pending. Sent and failed messages are never selected, which keeps
	// re-selection across overlapping ticks idempotent.
	FindDue(ctx context.Context, now time.Time) ([]*model.ScheduledMessage, error)

	// BulkMarkSent transitions the given messages to sent in one batched
	// write, each with its own sentAt
	BulkMarkSent(ctx context.Context, updates []model.SentUpdate) error

	// BulkMarkFailed transitions the given messages to failed in one
	// batched write, each with its own failedAt and reason
	BulkMarkFailed(ctx context.Context, updates []model.FailedUpdate) error

	// MarkSent is the single-record fallback for BulkMarkSent
	MarkSent(ctx context.Context, update model.SentUpdate) error

	// MarkFailed is the single-record fallback for BulkMarkFailed
	MarkFailed(ctx context.Context, update model.FailedUpdate) error

	// DeleteIfPending removes a message only while it is still pending
	// and owned by the given user. Returns the backend's ErrNotFound for
	// absent, foreign, or already-terminal messages.
	DeleteIfPending(ctx context.Context, id types.MessageID, userID types.SlackUserID) error
}
