package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/chronoslack/chronoslack/pkg/domain/interfaces"
	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
	"github.com/chronoslack/chronoslack/pkg/repository/memory"
	"github.com/chronoslack/chronoslack/pkg/service/slack"
	"github.com/chronoslack/chronoslack/pkg/service/token"
	"github.com/chronoslack/chronoslack/pkg/service/worker"
)

// mockSlack delivers successfully except for channels listed in failWith
// and panics on channels listed in panicOn
type mockSlack struct {
	mu       sync.Mutex
	posted   []string
	failWith map[string]string
	panicOn  map[string]bool
}

func (m *mockSlack) ExchangeCode(ctx context.Context, code, redirectURI string) (*slack.TokenGrant, *slack.Identity, error) {
	return nil, nil, errors.New("not implemented")
}

func (m *mockSlack) ExchangeLongLivedToken(ctx context.Context, accessToken string) (*slack.TokenGrant, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSlack) Refresh(ctx context.Context, refreshToken string) (*slack.TokenGrant, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSlack) ValidateToken(ctx context.Context, accessToken string) error {
	return nil
}

func (m *mockSlack) ListChannels(ctx context.Context, accessToken string) ([]slack.Channel, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSlack) PostMessage(ctx context.Context, accessToken, channelID, text string) error {
	if m.panicOn[channelID] {
		panic("slack client blew up")
	}
	if reason, ok := m.failWith[channelID]; ok {
		return errors.New(reason)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, channelID)
	return nil
}

func setupWorker(t *testing.T, repo interfaces.Repository, svc slack.Service, now time.Time) *worker.DeliveryWorker {
	t.Helper()

	tokens := token.New(repo, svc,
		token.WithClock(func() time.Time { return now }),
		token.WithoutLiveValidation())

	return worker.New(repo, tokens, svc, worker.WithClock(func() time.Time { return now }))
}

func saveTestUser(t *testing.T, repo interfaces.Repository, userID types.SlackUserID, expiresAt time.Time) {
	t.Helper()
	gt.NoError(t, repo.User().Save(context.Background(), &model.User{
		SlackUserID:    userID,
		SlackTeamID:    "T1",
		AccessToken:    "xoxe-" + userID.String(),
		RefreshToken:   "xoxe-1-" + userID.String(),
		TokenExpiresAt: expiresAt,
	})).Required()
}

func scheduleTestMessage(t *testing.T, repo interfaces.Repository, userID types.SlackUserID, channelID string, at time.Time) *model.ScheduledMessage {
	t.Helper()
	msg := model.NewScheduledMessage(userID, channelID, channelID, "scheduled text", at)
	gt.NoError(t, repo.Message().Create(context.Background(), msg)).Required()
	return msg
}

func TestTick_MixedOutcomes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()
	saveTestUser(t, repo, "U1", now.Add(time.Hour))

	a := scheduleTestMessage(t, repo, "U1", "C-OK-1", now.Add(-time.Minute))
	b := scheduleTestMessage(t, repo, "U1", "C-BROKEN", now.Add(-time.Minute))
	c := scheduleTestMessage(t, repo, "U1", "C-OK-2", now.Add(-time.Minute))

	svc := &mockSlack{failWith: map[string]string{"C-BROKEN": "channel_not_found"}}
	w := setupWorker(t, repo, svc, now)

	gt.NoError(t, w.Tick(ctx))

	// One failing message must not affect its siblings
	gotA, err := repo.Message().Get(ctx, a.ID)
	gt.NoError(t, err)
	gt.V(t, gotA.Status).Equal(types.DeliveryStatusSent)
	gt.V(t, *gotA.SentAt).Equal(now)

	gotB, err := repo.Message().Get(ctx, b.ID)
	gt.NoError(t, err)
	gt.V(t, gotB.Status).Equal(types.DeliveryStatusFailed)
	gt.V(t, gotB.FailureReason).Equal("channel_not_found")
	gt.V(t, *gotB.FailedAt).Equal(now)

	gotC, err := repo.Message().Get(ctx, c.ID)
	gt.NoError(t, err)
	gt.V(t, gotC.Status).Equal(types.DeliveryStatusSent)

	gt.A(t, svc.posted).Length(2)
}

func TestTick_FutureMessagesLeftAlone(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()
	saveTestUser(t, repo, "U1", now.Add(time.Hour))
	msg := scheduleTestMessage(t, repo, "U1", "C-OK", now.Add(time.Minute))

	svc := &mockSlack{}
	w := setupWorker(t, repo, svc, now)

	gt.NoError(t, w.Tick(ctx))

	got, err := repo.Message().Get(ctx, msg.ID)
	gt.NoError(t, err)
	gt.V(t, got.Status).Equal(types.DeliveryStatusPending)
	gt.A(t, svc.posted).Length(0)
}

func TestTick_SecondTickIsNoop(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()
	saveTestUser(t, repo, "U1", now.Add(time.Hour))
	scheduleTestMessage(t, repo, "U1", "C-OK", now.Add(-time.Minute))
	scheduleTestMessage(t, repo, "U1", "C-BROKEN", now.Add(-time.Minute))

	svc := &mockSlack{failWith: map[string]string{"C-BROKEN": "not_in_channel"}}
	w := setupWorker(t, repo, svc, now)

	gt.NoError(t, w.Tick(ctx))
	gt.NoError(t, w.Tick(ctx))

	// Sent and failed messages are terminal; neither is re-attempted
	gt.A(t, svc.posted).Length(1)
}

func TestTick_MissingCredentialsFailTheMessage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()
	msg := scheduleTestMessage(t, repo, "U-gone", "C-OK", now.Add(-time.Minute))

	svc := &mockSlack{}
	w := setupWorker(t, repo, svc, now)

	gt.NoError(t, w.Tick(ctx))

	got, err := repo.Message().Get(ctx, msg.ID)
	gt.NoError(t, err)
	gt.V(t, got.Status).Equal(types.DeliveryStatusFailed)
	gt.B(t, got.FailureReason != "").True()
	gt.A(t, svc.posted).Length(0)
}

func TestTick_PanicBecomesFailedOutcome(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()
	saveTestUser(t, repo, "U1", now.Add(time.Hour))
	bad := scheduleTestMessage(t, repo, "U1", "C-PANIC", now.Add(-time.Minute))
	good := scheduleTestMessage(t, repo, "U1", "C-OK", now.Add(-time.Minute))

	svc := &mockSlack{panicOn: map[string]bool{"C-PANIC": true}}
	w := setupWorker(t, repo, svc, now)

	gt.NoError(t, w.Tick(ctx))

	gotBad, err := repo.Message().Get(ctx, bad.ID)
	gt.NoError(t, err)
	gt.V(t, gotBad.Status).Equal(types.DeliveryStatusFailed)

	gotGood, err := repo.Message().Get(ctx, good.ID)
	gt.NoError(t, err)
	gt.V(t, gotGood.Status).Equal(types.DeliveryStatusSent)
}

// failingBulkRepo simulates a backend whose batched writes are down
// while single-record writes still work
type failingBulkRepo struct {
	interfaces.Repository
	messages *failingBulkMessages
}

type failingBulkMessages struct {
	interfaces.MessageRepository
}

func (r *failingBulkRepo) Message() interfaces.MessageRepository {
	return r.messages
}

func (m *failingBulkMessages) BulkMarkSent(ctx context.Context, updates []model.SentUpdate) error {
	return errors.New("bulk writer unavailable")
}

func (m *failingBulkMessages) BulkMarkFailed(ctx context.Context, updates []model.FailedUpdate) error {
	return errors.New("bulk writer unavailable")
}

func TestTick_BulkWriteFallback(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	base := memory.New()
	repo := &failingBulkRepo{
		Repository: base,
		messages:   &failingBulkMessages{MessageRepository: base.Message()},
	}

	saveTestUser(t, repo, "U1", now.Add(time.Hour))

	var sent []*model.ScheduledMessage
	for _, ch := range []string{"C-OK-1", "C-OK-2", "C-OK-3"} {
		sent = append(sent, scheduleTestMessage(t, repo, "U1", ch, now.Add(-time.Minute)))
	}
	failed := []*model.ScheduledMessage{
		scheduleTestMessage(t, repo, "U1", "C-BAD-1", now.Add(-time.Minute)),
		scheduleTestMessage(t, repo, "U1", "C-BAD-2", now.Add(-time.Minute)),
	}

	svc := &mockSlack{failWith: map[string]string{
		"C-BAD-1": "channel_not_found",
		"C-BAD-2": "is_archived",
	}}
	w := setupWorker(t, repo, svc, now)

	gt.NoError(t, w.Tick(ctx))

	// Sequential fallback must reach the same end state as the bulk path
	for _, msg := range sent {
		got, err := repo.Message().Get(ctx, msg.ID)
		gt.NoError(t, err)
		gt.V(t, got.Status).Equal(types.DeliveryStatusSent)
	}
	for _, msg := range failed {
		got, err := repo.Message().Get(ctx, msg.ID)
		gt.NoError(t, err)
		gt.V(t, got.Status).Equal(types.DeliveryStatusFailed)
	}
}

func TestWorker_StartStop(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	repo := memory.New()
	svc := &mockSlack{}
	tokens := token.New(repo, svc, token.WithoutLiveValidation())

	w := worker.New(repo, tokens, svc,
		worker.WithInterval(10*time.Millisecond),
		worker.WithClock(func() time.Time { return now }))

	gt.NoError(t, w.Start(ctx))
	time.Sleep(30 * time.Millisecond)
	w.Stop() // must not hang or panic
}
