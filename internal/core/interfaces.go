package core

import (
	"context"

	"github.com/example/quakealert/internal/db"
	"github.com/example/quakealert/internal/models"
)

// UserService handles session start and profile reads.
type UserService interface {
	// GetOrCreate returns the caller's profile, creating it on first sign-in and
	// refreshing email and display name when the identity provider reports new ones.
	GetOrCreate(ctx context.Context, userID, email, displayName string) (*models.User, bool, error)
	GetByID(ctx context.Context, userID string) (*models.User, error)
}

// SocialService owns the friend-request lifecycle and the mutual contact list.
type SocialService interface {
	SendFriendRequest(ctx context.Context, actorID, targetEmail string) (*models.FriendRequest, error)
	AcceptFriendRequest(ctx context.Context, actorID, requestID string) error
	DeclineFriendRequest(ctx context.Context, actorID, requestID string) error
	RemoveContact(ctx context.Context, actorID, contactID string) error
	SetEmergencyContact(ctx context.Context, actorID, contactID string, enabled bool) error
	ListPendingRequests(ctx context.Context, actorID string) ([]models.FriendRequest, error)
}

// GroupService owns group creation, membership and deletion.
type GroupService interface {
	CreateGroup(ctx context.Context, actorID, name string, memberIDs []string) (*models.GroupChat, error)
	LeaveGroup(ctx context.Context, actorID, groupID string) error
	DeleteGroup(ctx context.Context, actorID, groupID string) error
	ListGroups(ctx context.Context, actorID string) ([]models.GroupChat, error)
}

// MessageService persists and orders chat messages.
type MessageService interface {
	SendDirectMessage(ctx context.Context, actorID, peerID, text string) (*models.Message, error)
	SendGroupMessage(ctx context.Context, actorID, groupID, text string) (*models.Message, error)
	// ListMessages returns the channel's messages once actorID may read it.
	ListMessages(ctx context.Context, actorID string, channel models.ChannelRef) ([]models.Message, error)
	// Subscribe streams full ordered snapshots of channel until cancelled.
	Subscribe(ctx context.Context, channel models.ChannelRef) *db.Subscription[models.Message]
	// AuthorizeChannel checks that actorID participates in channel.
	AuthorizeChannel(ctx context.Context, actorID string, channel models.ChannelRef) error
}

// SOSService broadcasts an emergency alert to the actor's emergency contacts.
type SOSService interface {
	SendSOS(ctx context.Context, actorID string, location *models.Location) (*SOSReport, error)
}

// AuditService defines the interface for audit logging operations.
type AuditService interface {
	CreateAuditLog(ctx context.Context, logEntry models.AuditLog) error
}
