package model

import (
	"time"

	"github.com/chronoslack/chronoslack/pkg/domain/types"
)

// DeliveryOutcome is the terminal result of one delivery attempt for one
// message. It is a tagged variant: Success selects which timestamp and
// reason fields are meaningful.
type DeliveryOutcome struct {
	MessageID types.MessageID
	Success   bool

	SentAt time.Time // set when Success

	FailedAt time.Time // set when !Success
	Reason   string    // set when !Success
}

// NewSentOutcome builds a successful outcome stamped with the given instant
func NewSentOutcome(id types.MessageID, sentAt time.Time) *DeliveryOutcome {
	return &DeliveryOutcome{
		MessageID: id,
		Success:   true,
		SentAt:    sentAt,
	}
}

// NewFailedOutcome builds a failed outcome carrying the failure reason
func NewFailedOutcome(id types.MessageID, failedAt time.Time, reason string) *DeliveryOutcome {
	return &DeliveryOutcome{
		MessageID: id,
		FailedAt:  failedAt,
		Reason:    reason,
	}
}

// SentUpdate converts a successful outcome into its persistence write
func (x *DeliveryOutcome) SentUpdate() SentUpdate {
	return SentUpdate{ID: x.MessageID, SentAt: x.SentAt}
}

// FailedUpdate converts a failed outcome into its persistence write
func (x *DeliveryOutcome) FailedUpdate() FailedUpdate {
	return FailedUpdate{ID: x.MessageID, FailedAt: x.FailedAt, Reason: x.Reason}
}
