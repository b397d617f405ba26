package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
)

type userRepository struct {
	mu    sync.RWMutex
	users map[types.SlackUserID]*model.User
}

func newUserRepository() *userRepository {
	return &userRepository{
		users: make(map[types.SlackUserID]*model.User),
	}
}

func copyUser(u *model.User) *model.User {
	copied := *u
	return &copied
}

func (r *userRepository) GetBySlackID(ctx context.Context, id types.SlackUserID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "user not found", goerr.V("slackUserID", id))
	}

	return copyUser(user), nil
}

func (r *userRepository) Save(ctx context.Context, user *model.User) error {
	if err := user.Validate(); err != nil {
		return goerr.Wrap(err, "invalid user")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[user.SlackUserID] = copyUser(user)
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id types.SlackUserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return goerr.Wrap(ErrNotFound, "user not found", goerr.V("slackUserID", id))
	}

	delete(r.users, id)
	return nil
}
