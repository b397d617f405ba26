package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
)

const usersCollection = "users"

type userRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newUserRepository(client *firestore.Client) *userRepository {
	return &userRepository{
		client: client,
	}
}

// userDoc is the Firestore persistence model
type userDoc struct {
	SlackUserID    string    `firestore:"slack_user_id"`
	SlackTeamID    string    `firestore:"slack_team_id"`
	AccessToken    string    `firestore:"access_token"`
	RefreshToken   string    `firestore:"refresh_token"`
	TokenExpiresAt time.Time `firestore:"token_expires_at"`
	CreatedAt      time.Time `firestore:"created_at"`
	UpdatedAt      time.Time `firestore:"updated_at"`
}

func (r *userRepository) collection() *firestore.CollectionRef {
	if r.collectionPrefix != "" {
		return r.client.Collection(r.collectionPrefix + "_" + usersCollection)
	}
	return r.client.Collection(usersCollection)
}

func (r *userRepository) toDoc(user *model.User) *userDoc {
	return &userDoc{
		SlackUserID:    string(user.SlackUserID),
		SlackTeamID:    string(user.SlackTeamID),
		AccessToken:    user.AccessToken,
		RefreshToken:   user.RefreshToken,
		TokenExpiresAt: user.TokenExpiresAt,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}
}

func (r *userRepository) fromDoc(doc *userDoc) *model.User {
	return &model.User{
		SlackUserID:    types.SlackUserID(doc.SlackUserID),
		SlackTeamID:    types.TeamID(doc.SlackTeamID),
		AccessToken:    doc.AccessToken,
		RefreshToken:   doc.RefreshToken,
		TokenExpiresAt: doc.TokenExpiresAt,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func (r *userRepository) GetBySlackID(ctx context.Context, id types.SlackUserID) (*model.User, error) {
	doc, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "user not found", goerr.V("slackUserID", id))
		}
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("slackUserID", id))
	}

	var user userDoc
	if err := doc.DataTo(&user); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal user", goerr.V("slackUserID", id))
	}

	return r.fromDoc(&user), nil
}

func (r *userRepository) Save(ctx context.Context, user *model.User) error {
	if err := user.Validate(); err != nil {
		return goerr.Wrap(err, "invalid user")
	}

	docRef := r.collection().Doc(string(user.SlackUserID))
	if _, err := docRef.Set(ctx, r.toDoc(user)); err != nil {
		return goerr.Wrap(err, "failed to save user", goerr.V("slackUserID", user.SlackUserID))
	}

	return nil
}

func (r *userRepository) Delete(ctx context.Context, id types.SlackUserID) error {
	docRef := r.collection().Doc(string(id))

	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "user not found", goerr.V("slackUserID", id))
		}
		return goerr.Wrap(err, "failed to get user", goerr.V("slackUserID", id))
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete user", goerr.V("slackUserID", id))
	}

	return nil
}
