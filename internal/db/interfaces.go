package db

import (
	"context"

	"github.com/example/quakealert/internal/models"
)

// UserRepository defines the interface for user profile storage operations.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*models.User, error)
	// GetByEmail looks a user up by the lower-cased email address.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	// UpdateProfile merges email and display name into an existing document.
	UpdateProfile(ctx context.Context, userID, email, displayName string) error
	// SetEmergencyContact adds or removes contactID from the emergency set.
	SetEmergencyContact(ctx context.Context, userID, contactID string, enabled bool) error
	Watch(ctx context.Context, userID string) *Subscription[models.User]
}

// FriendRequestRepository stores requests under the recipient's namespace,
// keyed by the sender's id.
type FriendRequestRepository interface {
	// Create fails with ErrAlreadyExists while a request from req.FromID to
	// recipientID is pending.
	Create(ctx context.Context, recipientID string, req *models.FriendRequest) (string, error)
	GetByID(ctx context.Context, recipientID, requestID string) (*models.FriendRequest, error)
	// FindFrom returns the live request from senderID to recipientID, or ErrNotFound.
	FindFrom(ctx context.Context, recipientID, senderID string) (*models.FriendRequest, error)
	ListPending(ctx context.Context, recipientID string) ([]models.FriendRequest, error)
	Delete(ctx context.Context, recipientID, requestID string) error
	Watch(ctx context.Context, recipientID string) *Subscription[models.FriendRequest]
}

// GroupMutation edits a group inside a single-document transaction. Returning
// an error aborts the transaction and leaves the document unchanged.
type GroupMutation func(group *models.GroupChat) error

// GroupRepository defines the interface for group chat storage operations.
type GroupRepository interface {
	Create(ctx context.Context, group *models.GroupChat) (string, error)
	GetByID(ctx context.Context, groupID string) (*models.GroupChat, error)
	// Mutate applies fn to the current document state atomically and returns
	// the stored result. Concurrent mutations are serialized by the store.
	Mutate(ctx context.Context, groupID string, fn GroupMutation) (*models.GroupChat, error)
	Delete(ctx context.Context, groupID string) error
	ListForMember(ctx context.Context, userID string) ([]models.GroupChat, error)
	WatchForMember(ctx context.Context, userID string) *Subscription[models.GroupChat]
}

// MessageRepository stores messages as children of a channel. Listings are
// ordered by timestamp ascending with the document id as tie-break.
type MessageRepository interface {
	// Create writes msg with a store-assigned timestamp and returns its id.
	Create(ctx context.Context, channel models.ChannelRef, msg *models.Message) (string, error)
	List(ctx context.Context, channel models.ChannelRef) ([]models.Message, error)
	// DeleteAll removes every message of the channel.
	DeleteAll(ctx context.Context, channel models.ChannelRef) error
	Watch(ctx context.Context, channel models.ChannelRef) *Subscription[models.Message]
}

// AuditRepository defines the interface for audit log data storage operations.
type AuditRepository interface {
	Create(ctx context.Context, logEntry models.AuditLog) error
	// ListByUser returns the entries written by userID, oldest first.
	ListByUser(ctx context.Context, userID string) ([]models.AuditLog, error)
}

// GraphBatch collects contact-graph writes that commit all-or-nothing.
type GraphBatch interface {
	AddContact(ownerID string, ref models.ContactRef)
	RemoveContact(ownerID string, ref models.ContactRef)
	RemoveEmergencyContact(ownerID, contactID string)
	// DeleteFriendRequest fails the whole commit with ErrNotFound if the
	// request no longer exists.
	DeleteFriendRequest(recipientID, requestID string)
	// DiscardFriendRequest deletes the request if it exists.
	DiscardFriendRequest(recipientID, requestID string)
	Commit(ctx context.Context) error
}

// BatchWriter opens contact-graph batches.
type BatchWriter interface {
	NewGraphBatch() GraphBatch
}

// Store bundles the repositories of one backend.
type Store interface {
	BatchWriter
	Users() UserRepository
	FriendRequests() FriendRequestRepository
	Groups() GroupRepository
	Messages() MessageRepository
	Audit() AuditRepository
	Close() error
}
