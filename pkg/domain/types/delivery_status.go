package types

import "github.com/m-mizutani/goerr/v2"

// DeliveryStatus represents the delivery state of a scheduled message
type DeliveryStatus string

const (
	// DeliveryStatusPending means the message is waiting for its scheduled time
	DeliveryStatusPending DeliveryStatus = "pending"
	// DeliveryStatusSent means the message was delivered to Slack
	DeliveryStatusSent DeliveryStatus = "sent"
	// DeliveryStatusFailed means a delivery attempt was made and failed
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// Validate checks if the DeliveryStatus is a known value
func (x DeliveryStatus) Validate() error {
	switch x {
	case DeliveryStatusPending, DeliveryStatusSent, DeliveryStatusFailed:
		return nil
	default:
		return goerr.New("invalid delivery status", goerr.V("status", x))
	}
}

// IsTerminal returns true once a message reached a final state.
// Terminal messages never transition back to pending.
func (x DeliveryStatus) IsTerminal() bool {
	return x == DeliveryStatusSent || x == DeliveryStatusFailed
}

// String returns the string representation of DeliveryStatus
func (x DeliveryStatus) String() string {
	return string(x)
}
