package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chronoslack/chronoslack/pkg/domain/model"
	"github.com/chronoslack/chronoslack/pkg/domain/types"
)

const messagesCollection = "scheduled_messages"

type messageRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newMessageRepository(client *firestore.Client) *messageRepository {
	return &messageRepository{
		client: client,
	}
}

// messageDoc is the Firestore persistence model. The due query relies on
// the composite index over (sent, status, scheduled_for) managed by the
// migrate command.
type messageDoc struct {
	ID            string     `firestore:"id"`
	UserID        string     `firestore:"user_id"`
	ChannelID     string     `firestore:"channel_id"`
	ChannelName   string     `firestore:"channel_name"`
	Body          string     `firestore:"body"`
	ScheduledFor  time.Time  `firestore:"scheduled_for"`
	Status        string     `firestore:"status"`
	Sent          bool       `firestore:"sent"`
	SentAt        *time.Time `firestore:"sent_at"`
	Failed        bool       `firestore:"failed"`
	FailedAt      *time.Time `firestore:"failed_at"`
	FailureReason string     `firestore:"failure_reason"`
	CreatedAt     time.Time  `firestore:"created_at"`
	UpdatedAt     time.Time  `firestore:"updated_at"`
}

func (r *messageRepository) collection() *firestore.CollectionRef {
	if r.collectionPrefix != "" {
		return r.client.Collection(r.collectionPrefix + "_" + messagesCollection)
	}
	return r.client.Collection(messagesCollection)
}

func (r *messageRepository) toDoc(msg *model.ScheduledMessage) *messageDoc {
	return &messageDoc{
		ID:            string(msg.ID),
		UserID:        string(msg.UserID),
		ChannelID:     msg.ChannelID,
		ChannelName:   msg.ChannelName,
		Body:          msg.Body,
		ScheduledFor:  msg.ScheduledFor,
		Status:        string(msg.Status),
		Sent:          msg.Sent,
		SentAt:        msg.SentAt,
		Failed:        msg.Failed,
		FailedAt:      msg.FailedAt,
		FailureReason: msg.FailureReason,
		CreatedAt:     msg.CreatedAt,
		UpdatedAt:     msg.UpdatedAt,
	}
}

func (r *messageRepository) fromDoc(doc *messageDoc) *model.ScheduledMessage {
	return &model.ScheduledMessage{
		ID:            types.MessageID(doc.ID),
		UserID:        types.SlackUserID(doc.UserID),
		ChannelID:     doc.ChannelID,
		ChannelName:   doc.ChannelName,
		Body:          doc.Body,
		ScheduledFor:  doc.ScheduledFor,
		Status:        types.DeliveryStatus(doc.Status),
		Sent:          doc.Sent,
		SentAt:        doc.SentAt,
		Failed:        doc.Failed,
		FailedAt:      doc.FailedAt,
		FailureReason: doc.FailureReason,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

func (r *messageRepository) Create(ctx context.Context, msg *model.ScheduledMessage) error {
	if err := msg.Validate(); err != nil {
		return goerr.Wrap(err, "invalid message")
	}

	docRef := r.collection().Doc(string(msg.ID))
	if _, err := docRef.Create(ctx, r.toDoc(msg)); err != nil {
		return goerr.Wrap(err, "failed to create message", goerr.V("messageID", msg.ID))
	}

	return nil
}

func (r *messageRepository) Get(ctx context.Context, id types.MessageID) (*model.ScheduledMessage, error) {
	doc, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "message not found", goerr.V("messageID", id))
		}
		return nil, goerr.Wrap(err, "failed to get message", goerr.V("messageID", id))
	}

	var msgDoc messageDoc
	if err := doc.DataTo(&msgDoc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal message", goerr.V("messageID", id))
	}

	return r.fromDoc(&msgDoc), nil
}

func (r *messageRepository) ListByUser(ctx context.Context, userID types.SlackUserID, deliveryStatus types.DeliveryStatus, limit int) ([]*model.ScheduledMessage, error) {
	query := r.collection().
		Where("user_id", "==", string(userID)).
		OrderBy("scheduled_for", firestore.Desc)
	if deliveryStatus != "" {
		query = r.collection().
			Where("user_id", "==", string(userID)).
			Where("status", "==", string(deliveryStatus)).
			OrderBy("scheduled_for", firestore.Desc)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	return r.queryMessages(ctx, query)
}

// FindDue selects due deliveries. Only pending messages match: sent and
// failed messages are excluded so overlapping ticks and past failures
// never re-select a message.
func (r *messageRepository) FindDue(ctx context.Context, now time.Time) ([]*model.ScheduledMessage, error) {
	query := r.collection().
		Where("sent", "==", false).
		Where("status", "==", string(types.DeliveryStatusPending)).
		Where("scheduled_for", "<=", now)

	return r.queryMessages(ctx, query)
}

func (r *messageRepository) queryMessages(ctx context.Context, query firestore.Query) ([]*model.ScheduledMessage, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*model.ScheduledMessage
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate messages")
		}

		var msgDoc messageDoc
		if err := doc.DataTo(&msgDoc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal message", goerr.V("docID", doc.Ref.ID))
		}

		messages = append(messages, r.fromDoc(&msgDoc))
	}

	return messages, nil
}

func sentWrites(update model.SentUpdate) []firestore.Update {
	return []firestore.Update{
		{Path: "sent", Value: true},
		{Path: "status", Value: string(types.DeliveryStatusSent)},
		{Path: "sent_at", Value: update.SentAt},
		{Path: "updated_at", Value: time.Now().UTC()},
	}
}

func failedWrites(update model.FailedUpdate) []firestore.Update {
	return []firestore.Update{
		{Path: "sent", Value: false},
		{Path: "failed", Value: true},
		{Path: "status", Value: string(types.DeliveryStatusFailed)},
		{Path: "failed_at", Value: update.FailedAt},
		{Path: "failure_reason", Value: update.Reason},
		{Path: "updated_at", Value: time.Now().UTC()},
	}
}

// pendingDoc reports whether the snapshot holds a message still in the
// pending state. Missing documents count as not pending.
func pendingDoc(snap *firestore.DocumentSnapshot) (bool, error) {
	if !snap.Exists() {
		return false, nil
	}

	var msgDoc messageDoc
	if err := snap.DataTo(&msgDoc); err != nil {
		return false, goerr.Wrap(err, "failed to unmarshal message", goerr.V("docID", snap.Ref.ID))
	}

	return msgDoc.Status == string(types.DeliveryStatusPending), nil
}

// BulkMarkSent applies all sent transitions through one BulkWriter so
// each record keeps its own timestamp within a single batched write.
//
// Records that are missing or already terminal are skipped: terminal
// transitions happen once, and a slow overlapping tick must not rewrite
// a state another tick already persisted. BulkWriter.Update only
// reports enqueue failures, so the write result of every job is checked
// after Flush; a failed job surfaces as an error and the caller falls
// back to per-record marking.
func (r *messageRepository) BulkMarkSent(ctx context.Context, updates []model.SentUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	docRefs := make([]*firestore.DocumentRef, len(updates))
	for i, update := range updates {
		docRefs[i] = r.collection().Doc(string(update.ID))
	}

	snaps, err := r.client.GetAll(ctx, docRefs)
	if err != nil {
		return goerr.Wrap(err, "failed to read messages for bulk sent update")
	}

	bulkWriter := r.client.BulkWriter(ctx)
	defer bulkWriter.End()

	var jobs []*firestore.BulkWriterJob
	var jobIDs []types.MessageID
	for i, snap := range snaps {
		pending, err := pendingDoc(snap)
		if err != nil {
			return err
		}
		if !pending {
			continue
		}

		job, err := bulkWriter.Update(docRefs[i], sentWrites(updates[i]))
		if err != nil {
			return goerr.Wrap(err, "failed to add Update to bulk writer", goerr.V("messageID", updates[i].ID))
		}
		jobs = append(jobs, job)
		jobIDs = append(jobIDs, updates[i].ID)
	}

	bulkWriter.Flush()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(err, "bulk sent write failed", goerr.V("messageID", jobIDs[i]))
		}
	}

	return nil
}

func (r *messageRepository) BulkMarkFailed(ctx context.Context, updates []model.FailedUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	docRefs := make([]*firestore.DocumentRef, len(updates))
	for i, update := range updates {
		docRefs[i] = r.collection().Doc(string(update.ID))
	}

	snaps, err := r.client.GetAll(ctx, docRefs)
	if err != nil {
		return goerr.Wrap(err, "failed to read messages for bulk failed update")
	}

	bulkWriter := r.client.BulkWriter(ctx)
	defer bulkWriter.End()

	var jobs []*firestore.BulkWriterJob
	var jobIDs []types.MessageID
	for i, snap := range snaps {
		pending, err := pendingDoc(snap)
		if err != nil {
			return err
		}
		if !pending {
			continue
		}

		job, err := bulkWriter.Update(docRefs[i], failedWrites(updates[i]))
		if err != nil {
			return goerr.Wrap(err, "failed to add Update to bulk writer", goerr.V("messageID", updates[i].ID))
		}
		jobs = append(jobs, job)
		jobIDs = append(jobIDs, updates[i].ID)
	}

	bulkWriter.Flush()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return goerr.Wrap(err, "bulk failed write failed", goerr.V("messageID", jobIDs[i]))
		}
	}

	return nil
}

// MarkSent transitions one pending message to sent. The status check
// and the write run inside a transaction so a record another tick
// already finalized stays untouched.
func (r *messageRepository) MarkSent(ctx context.Context, update model.SentUpdate) error {
	docRef := r.collection().Doc(string(update.ID))

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "message not found", goerr.V("messageID", update.ID))
			}
			return goerr.Wrap(err, "failed to get message", goerr.V("messageID", update.ID))
		}

		var msgDoc messageDoc
		if err := doc.DataTo(&msgDoc); err != nil {
			return goerr.Wrap(err, "failed to unmarshal message", goerr.V("messageID", update.ID))
		}

		if msgDoc.Status != string(types.DeliveryStatusPending) {
			return goerr.Wrap(ErrNotFound, "no pending message to mark sent",
				goerr.V("messageID", update.ID), goerr.V("status", msgDoc.Status))
		}

		return tx.Update(docRef, sentWrites(update))
	})
}

func (r *messageRepository) MarkFailed(ctx context.Context, update model.FailedUpdate) error {
	docRef := r.collection().Doc(string(update.ID))

	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "message not found", goerr.V("messageID", update.ID))
			}
			return goerr.Wrap(err, "failed to get message", goerr.V("messageID", update.ID))
		}

		var msgDoc messageDoc
		if err := doc.DataTo(&msgDoc); err != nil {
			return goerr.Wrap(err, "failed to unmarshal message", goerr.V("messageID", update.ID))
		}

		if msgDoc.Status != string(types.DeliveryStatusPending) {
			return goerr.Wrap(ErrNotFound, "no pending message to mark failed",
				goerr.V("messageID", update.ID), goerr.V("status", msgDoc.Status))
		}

		return tx.Update(docRef, failedWrites(update))
	})
}

// DeleteIfPending removes a pending message owned by the user. The
// ownership and status checks run inside a transaction so a concurrent
// terminal transition cannot be overwritten by the delete.
func (r *messageRepository) DeleteIfPending(ctx context.Context, id types.MessageID, userID types.SlackUserID) error {
	docRef := r.collection().Doc(string(id))

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "message not found", goerr.V("messageID", id))
			}
			return goerr.Wrap(err, "failed to get message", goerr.V("messageID", id))
		}

		var msgDoc messageDoc
		if err := doc.DataTo(&msgDoc); err != nil {
			return goerr.Wrap(err, "failed to unmarshal message", goerr.V("messageID", id))
		}

		if msgDoc.UserID != string(userID) || msgDoc.Status != string(types.DeliveryStatusPending) {
			return goerr.Wrap(ErrNotFound, "no pending message to delete",
				goerr.V("messageID", id), goerr.V("slackUserID", userID))
		}

		return tx.Delete(docRef)
	})
	if err != nil {
		return err
	}

	return nil
}
