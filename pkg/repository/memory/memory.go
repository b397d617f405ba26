package memory

import (
	"github.com/chronoslack/chronoslack/pkg/domain/interfaces"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = interfaces.ErrNotFound

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory is the in-memory repository backend for development and tests
type Memory struct {
	users    *userRepository
	messages *messageRepository
	tokens   *tokenStore
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		users:    newUserRepository(),
		messages: newMessageRepository(),
		tokens:   newTokenStore(),
	}
}

func (m *Memory) User() interfaces.UserRepository {
	return m.users
}

func (m *Memory) Message() interfaces.MessageRepository {
	return m.messages
}

func (m *Memory) Close() error {
	return nil
}
