package db

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/models"
)

// firestoreFriendRequestRepository stores requests at
// users/{recipientId}/pendingRequests/{fromId}. Keying on the sender lets the
// store reject a second live request from the same sender.
type firestoreFriendRequestRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

func (r *firestoreFriendRequestRepository) collection(recipientID string) *firestore.CollectionRef {
	return r.client.Collection(usersCollection).Doc(recipientID).Collection(pendingRequestsCollection)
}

func decodeFriendRequest(doc *firestore.DocumentSnapshot) (models.FriendRequest, error) {
	var req models.FriendRequest
	if err := doc.DataTo(&req); err != nil {
		return req, err
	}
	req.ID = doc.Ref.ID
	return req, nil
}

func (r *firestoreFriendRequestRepository) Create(ctx context.Context, recipientID string, req *models.FriendRequest) (string, error) {
	if req.FromID == "" {
		return "", fmt.Errorf("create friend request for '%s': %w: empty sender", recipientID, ErrUnavailable)
	}
	ref := r.collection(recipientID).Doc(req.FromID)
	if _, err := ref.Create(ctx, req); err != nil {
		return "", mapError(err, fmt.Sprintf("create friend request from '%s' for '%s'", req.FromID, recipientID))
	}
	req.ID = ref.ID
	return ref.ID, nil
}

func (r *firestoreFriendRequestRepository) GetByID(ctx context.Context, recipientID, requestID string) (*models.FriendRequest, error) {
	if requestID == "" {
		return nil, fmt.Errorf("empty request ID: %w", ErrNotFound)
	}
	doc, err := r.collection(recipientID).Doc(requestID).Get(ctx)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("friend request '%s' of '%s'", requestID, recipientID))
	}
	req, err := decodeFriendRequest(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode friend request '%s': %w", requestID, err)
	}
	return &req, nil
}

func (r *firestoreFriendRequestRepository) FindFrom(ctx context.Context, recipientID, senderID string) (*models.FriendRequest, error) {
	return r.GetByID(ctx, recipientID, senderID)
}

func (r *firestoreFriendRequestRepository) ListPending(ctx context.Context, recipientID string) ([]models.FriendRequest, error) {
	reqs, err := getAll(ctx, r.collection(recipientID).OrderBy("createdAt", firestore.Asc), decodeFriendRequest)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("friend requests of '%s'", recipientID))
	}
	return reqs, nil
}

func (r *firestoreFriendRequestRepository) Delete(ctx context.Context, recipientID, requestID string) error {
	if _, err := r.collection(recipientID).Doc(requestID).Delete(ctx, firestore.Exists); err != nil {
		return mapError(err, fmt.Sprintf("delete friend request '%s'", requestID))
	}
	return nil
}

func (r *firestoreFriendRequestRepository) Watch(ctx context.Context, recipientID string) *Subscription[models.FriendRequest] {
	return watchQuery(ctx, r.collection(recipientID).OrderBy("createdAt", firestore.Asc), decodeFriendRequest, r.logger)
}
