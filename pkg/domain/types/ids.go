package types

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// SlackUserID represents a Slack workspace user ID (e.g. "U0123456789")
type SlackUserID string

// Validate checks if the SlackUserID is valid
func (x SlackUserID) Validate() error {
	if x == "" {
		return goerr.New("slack user ID cannot be empty")
	}
	return nil
}

// String returns the string representation of SlackUserID
func (x SlackUserID) String() string {
	return string(x)
}

// TeamID represents a Slack workspace team ID (e.g. "T0123456789")
type TeamID string

// Validate checks if the TeamID is valid
func (x TeamID) Validate() error {
	if x == "" {
		return goerr.New("team ID cannot be empty")
	}
	return nil
}

// String returns the string representation of TeamID
func (x TeamID) String() string {
	return string(x)
}

// MessageID represents a unique identifier for a scheduled message
type MessageID string

// NewMessageID generates a new random MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

// Validate checks if the MessageID is valid
func (x MessageID) Validate() error {
	if x == "" {
		return goerr.New("message ID cannot be empty")
	}
	return nil
}

// String returns the string representation of MessageID
func (x MessageID) String() string {
	return string(x)
}
