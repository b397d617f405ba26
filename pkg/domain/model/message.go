package model

import (
	"time"
	"unicode/utf8"

	"github.com/chronoslack/chronoslack/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// MaxMessageBodyLength is Slack's chat.postMessage text limit
const MaxMessageBodyLength = 40000

// ScheduledMessage is a message queued for future delivery.
//
// Delivery state is tracked by Status plus the redundant Sent/Failed
// flags, which must stay consistent with Status. A message transitions
// pending -> sent or pending -> failed exactly once; the delivery worker
// is the only writer of those transitions.
type ScheduledMessage struct {
	ID     types.MessageID
	UserID types.SlackUserID

	ChannelID string
	// ChannelName is captured at schedule time for display and is not
	// re-resolved later.
	ChannelName string
	Body        string

	// ScheduledFor is the instant at/after which delivery is attempted
	ScheduledFor time.Time

	Status types.DeliveryStatus
	Sent   bool
	SentAt *time.Time

	Failed        bool
	FailedAt      *time.Time
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewScheduledMessage creates a pending message with a generated ID
func NewScheduledMessage(userID types.SlackUserID, channelID, channelName, body string, scheduledFor time.Time) *ScheduledMessage {
	now := time.Now().UTC()
	return &ScheduledMessage{
		ID:           types.NewMessageID(),
		UserID:       userID,
		ChannelID:    channelID,
		ChannelName:  channelName,
		Body:         body,
		ScheduledFor: scheduledFor,
		Status:       types.DeliveryStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate checks the invariants of a scheduled message
func (x *ScheduledMessage) Validate() error {
	if err := x.ID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid message")
	}
	if err := x.UserID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid message", goerr.V("messageID", x.ID))
	}
	if x.ChannelID == "" {
		return goerr.New("channel ID is required", goerr.V("messageID", x.ID))
	}
	if x.Body == "" {
		return goerr.New("message body is required", goerr.V("messageID", x.ID))
	}
	if utf8.RuneCountInString(x.Body) > MaxMessageBodyLength {
		return goerr.New("message body is too long",
			goerr.V("messageID", x.ID),
			goerr.V("length", utf8.RuneCountInString(x.Body)),
			goerr.V("limit", MaxMessageBodyLength))
	}
	if x.ScheduledFor.IsZero() {
		return goerr.New("scheduled time is required", goerr.V("messageID", x.ID))
	}
	if err := x.Status.Validate(); err != nil {
		return goerr.Wrap(err, "invalid message", goerr.V("messageID", x.ID))
	}
	return nil
}

// IsDue reports whether the message should be attempted at the given
// instant: its scheduled time has passed and it has not reached a
// terminal state. Failed messages are never retried automatically.
func (x *ScheduledMessage) IsDue(now time.Time) bool {
	return !x.ScheduledFor.After(now) && !x.Sent && x.Status == types.DeliveryStatusPending
}

// SentUpdate carries the terminal fields of one successful delivery.
// Each record gets its own timestamp in a bulk write.
type SentUpdate struct {
	ID     types.MessageID
	SentAt time.Time
}

// FailedUpdate carries the terminal fields of one failed delivery
type FailedUpdate struct {
	ID       types.MessageID
	FailedAt time.Time
	Reason   string
}
