package interfaces

import (
	"context"

	"github.com/chronoslack/chronoslack/pkg/domain/model/auth"
)

// Repository defines the interface for data persistence
type Repository interface {
	User() UserRepository
	Message() MessageRepository

	// Session token methods
	PutToken(ctx context.Context, token *auth.Token) error
	GetToken(ctx context.Context, tokenID auth.TokenID) (*auth.Token, error)
	DeleteToken(ctx context.Context, tokenID auth.TokenID) error

	Close() error
}
