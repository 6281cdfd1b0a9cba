package db

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/models"
)

// firestoreGroupRepository implements GroupRepository on the groupChats collection.
type firestoreGroupRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

func decodeGroup(doc *firestore.DocumentSnapshot) (models.GroupChat, error) {
	var group models.GroupChat
	if err := doc.DataTo(&group); err != nil {
		return group, err
	}
	group.ID = doc.Ref.ID
	return group, nil
}

func (r *firestoreGroupRepository) Create(ctx context.Context, group *models.GroupChat) (string, error) {
	ref, _, err := r.client.Collection(groupChatsCollection).Add(ctx, group)
	if err != nil {
		return "", mapError(err, "create group")
	}
	group.ID = ref.ID
	return ref.ID, nil
}

func (r *firestoreGroupRepository) GetByID(ctx context.Context, groupID string) (*models.GroupChat, error) {
	if groupID == "" {
		return nil, fmt.Errorf("empty group ID: %w", ErrNotFound)
	}
	doc, err := r.client.Collection(groupChatsCollection).Doc(groupID).Get(ctx)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("group '%s'", groupID))
	}
	group, err := decodeGroup(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode group '%s': %w", groupID, err)
	}
	return &group, nil
}

// Mutate runs fn inside a Firestore transaction on the group document. The
// transaction function may be retried on contention, so fn must be free of
// side effects outside the group it receives.
func (r *firestoreGroupRepository) Mutate(ctx context.Context, groupID string, fn GroupMutation) (*models.GroupChat, error) {
	ref := r.client.Collection(groupChatsCollection).Doc(groupID)
	var result models.GroupChat
	var fnErr error
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fnErr = nil
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		group, err := decodeGroup(doc)
		if err != nil {
			return err
		}
		if err := fn(&group); err != nil {
			fnErr = err
			return err
		}
		result = group
		return tx.Update(ref, []firestore.Update{
			{Path: "members", Value: group.Members},
			{Path: "creatorId", Value: group.CreatorID},
			{Path: "name", Value: group.Name},
		})
	})
	if err != nil {
		if fnErr != nil && errors.Is(err, fnErr) {
			return nil, fnErr
		}
		return nil, mapError(err, fmt.Sprintf("mutate group '%s'", groupID))
	}
	return &result, nil
}

func (r *firestoreGroupRepository) Delete(ctx context.Context, groupID string) error {
	if _, err := r.client.Collection(groupChatsCollection).Doc(groupID).Delete(ctx); err != nil {
		return mapError(err, fmt.Sprintf("delete group '%s'", groupID))
	}
	return nil
}

func (r *firestoreGroupRepository) memberQuery(userID string) firestore.Query {
	return r.client.Collection(groupChatsCollection).Where("members", "array-contains", userID)
}

func (r *firestoreGroupRepository) ListForMember(ctx context.Context, userID string) ([]models.GroupChat, error) {
	groups, err := getAll(ctx, r.memberQuery(userID), decodeGroup)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("groups of '%s'", userID))
	}
	return groups, nil
}

func (r *firestoreGroupRepository) WatchForMember(ctx context.Context, userID string) *Subscription[models.GroupChat] {
	return watchQuery(ctx, r.memberQuery(userID), decodeGroup, r.logger)
}
