package db

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/models"
)

// deleteBatchSize bounds the writes of one bulk delete round.
const deleteBatchSize = 400

// firestoreMessageRepository keeps direct messages at chats/{pairId}/messages
// and group messages at groupChats/{groupId}/messages.
type firestoreMessageRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

func (r *firestoreMessageRepository) collection(channel models.ChannelRef) *firestore.CollectionRef {
	parent := chatsCollection
	if channel.Kind == models.ChannelGroup {
		parent = groupChatsCollection
	}
	return r.client.Collection(parent).Doc(channel.ID).Collection(messagesCollection)
}

func (r *firestoreMessageRepository) ordered(channel models.ChannelRef) firestore.Query {
	return r.collection(channel).
		OrderBy("timestamp", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc)
}

func decodeMessage(doc *firestore.DocumentSnapshot) (models.Message, error) {
	var msg models.Message
	if err := doc.DataTo(&msg); err != nil {
		return msg, err
	}
	msg.ID = doc.Ref.ID
	return msg, nil
}

func (r *firestoreMessageRepository) Create(ctx context.Context, channel models.ChannelRef, msg *models.Message) (string, error) {
	ref, _, err := r.collection(channel).Add(ctx, msg)
	if err != nil {
		return "", mapError(err, fmt.Sprintf("create message in %s", channel))
	}
	msg.ID = ref.ID
	return ref.ID, nil
}

func (r *firestoreMessageRepository) List(ctx context.Context, channel models.ChannelRef) ([]models.Message, error) {
	msgs, err := getAll(ctx, r.ordered(channel), decodeMessage)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("messages of %s", channel))
	}
	return msgs, nil
}

// DeleteAll removes messages in rounds of deleteBatchSize until the channel is
// empty. A failure part way leaves the remaining messages in place.
func (r *firestoreMessageRepository) DeleteAll(ctx context.Context, channel models.ChannelRef) error {
	coll := r.collection(channel)
	for {
		refs, err := coll.Limit(deleteBatchSize).Documents(ctx).GetAll()
		if err != nil {
			return mapError(err, fmt.Sprintf("list messages of %s", channel))
		}
		if len(refs) == 0 {
			return nil
		}
		bw := r.client.BulkWriter(ctx)
		jobs := make([]*firestore.BulkWriterJob, 0, len(refs))
		for _, doc := range refs {
			job, err := bw.Delete(doc.Ref)
			if err != nil {
				bw.End()
				return mapError(err, fmt.Sprintf("delete messages of %s", channel))
			}
			jobs = append(jobs, job)
		}
		bw.End()
		for _, job := range jobs {
			if _, err := job.Results(); err != nil {
				return mapError(err, fmt.Sprintf("delete messages of %s", channel))
			}
		}
		r.logger.Debug("Deleted message batch", zap.Stringer("channel", channel), zap.Int("count", len(refs)))
	}
}

func (r *firestoreMessageRepository) Watch(ctx context.Context, channel models.ChannelRef) *Subscription[models.Message] {
	return watchQuery(ctx, r.ordered(channel), decodeMessage, r.logger)
}
