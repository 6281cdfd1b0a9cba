package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/quakealert/internal/db"
	"github.com/example/quakealert/internal/models"
)

const directSeparator = "_"

// ResolveDirectChannel returns the canonical channel id of the conversation
// between two users: the lexicographically smaller id first.
func ResolveDirectChannel(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + directSeparator + userB
}

// directParticipants returns the two users of a direct channel id. It fails
// for ids that are not the canonical id of exactly one pair, which rules out
// user ids containing the separator.
func directParticipants(channelID string) (string, string, bool) {
	a, b, ok := strings.Cut(channelID, directSeparator)
	if !ok || a == "" || b == "" || strings.Contains(b, directSeparator) {
		return "", "", false
	}
	return a, b, ResolveDirectChannel(a, b) == channelID
}

// DirectChannel returns the ChannelRef of the conversation between two users.
func DirectChannel(userA, userB string) models.ChannelRef {
	return models.ChannelRef{Kind: models.ChannelDirect, ID: ResolveDirectChannel(userA, userB)}
}

// GroupChannel returns the ChannelRef of a group's conversation.
func GroupChannel(groupID string) models.ChannelRef {
	return models.ChannelRef{Kind: models.ChannelGroup, ID: groupID}
}

// messageService implements MessageService.
type messageService struct {
	userRepo    db.UserRepository
	groupRepo   db.GroupRepository
	messageRepo db.MessageRepository
	logger      *zap.Logger
}

// NewMessageService creates a MessageService.
func NewMessageService(userRepo db.UserRepository, groupRepo db.GroupRepository, messageRepo db.MessageRepository, logger *zap.Logger) MessageService {
	return &messageService{
		userRepo:    userRepo,
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		logger:      logger,
	}
}

func (s *messageService) SendDirectMessage(ctx context.Context, actorID, peerID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if peerID == "" {
		return nil, fmt.Errorf("%w: peer ID is required", ErrInvalidInput)
	}
	if peerID == actorID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrSelfReference)
	}
	if strings.Contains(actorID, directSeparator) || strings.Contains(peerID, directSeparator) {
		return nil, fmt.Errorf("%w: user IDs in a direct chat cannot contain '%s'", ErrInvalidInput, directSeparator)
	}
	if _, err := s.userRepo.GetByID(ctx, peerID); err != nil {
		return nil, storeErr(err, "peer '%s'", peerID)
	}

	msg := &models.Message{Text: text, SenderID: actorID}
	if err := s.write(ctx, DirectChannel(actorID, peerID), msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendGroupMessage writes a message with a snapshot of the sender's current
// display name, so later renames do not rewrite history.
func (s *messageService) SendGroupMessage(ctx context.Context, actorID, groupID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, storeErr(err, "group '%s'", groupID)
	}
	if !group.HasMember(actorID) {
		return nil, fmt.Errorf("%w: '%s' in group '%s'", ErrNotMember, actorID, groupID)
	}
	sender, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, storeErr(err, "sender '%s'", actorID)
	}
	name := sender.DisplayName
	if name == "" {
		name = sender.Email
	}

	msg := &models.Message{Text: text, SenderID: actorID, SenderName: name}
	if err := s.write(ctx, GroupChannel(groupID), msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *messageService) write(ctx context.Context, channel models.ChannelRef, msg *models.Message) error {
	if _, err := s.messageRepo.Create(ctx, channel, msg); err != nil {
		return storeErr(err, "write message to %s", channel)
	}
	messagesSent.WithLabelValues(string(channel.Kind)).Inc()
	s.logger.Debug("Message sent", zap.Stringer("channel", channel), zap.String("messageID", msg.ID), zap.String("senderID", msg.SenderID))
	return nil
}

func (s *messageService) ListMessages(ctx context.Context, actorID string, channel models.ChannelRef) ([]models.Message, error) {
	if err := s.AuthorizeChannel(ctx, actorID, channel); err != nil {
		return nil, err
	}
	msgs, err := s.messageRepo.List(ctx, channel)
	if err != nil {
		return nil, storeErr(err, "list messages of %s", channel)
	}
	return msgs, nil
}

func (s *messageService) Subscribe(ctx context.Context, channel models.ChannelRef) *db.Subscription[models.Message] {
	return s.messageRepo.Watch(ctx, channel)
}

func (s *messageService) AuthorizeChannel(ctx context.Context, actorID string, channel models.ChannelRef) error {
	switch channel.Kind {
	case models.ChannelDirect:
		a, b, ok := directParticipants(channel.ID)
		if !ok {
			return fmt.Errorf("%w: malformed direct channel '%s'", ErrInvalidInput, channel.ID)
		}
		if actorID != a && actorID != b {
			return fmt.Errorf("%w: '%s' is not a participant of %s", ErrNotMember, actorID, channel)
		}
		return nil
	case models.ChannelGroup:
		group, err := s.groupRepo.GetByID(ctx, channel.ID)
		if err != nil {
			return storeErr(err, "group '%s'", channel.ID)
		}
		if !group.HasMember(actorID) {
			return fmt.Errorf("%w: '%s' in group '%s'", ErrNotMember, actorID, channel.ID)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown channel kind '%s'", ErrInvalidInput, channel.Kind)
	}
}
