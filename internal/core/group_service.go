package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/quakealert/internal/db"
	"github.com/example/quakealert/internal/models"
)

var (
	errLastMember = errors.New("last member")
	errNotInGroup = errors.New("not in group")
)

// groupService implements GroupService.
type groupService struct {
	userRepo     db.UserRepository
	groupRepo    db.GroupRepository
	messageRepo  db.MessageRepository
	auditService AuditService
	logger       *zap.Logger
}

// NewGroupService creates a GroupService.
func NewGroupService(
	userRepo db.UserRepository,
	groupRepo db.GroupRepository,
	messageRepo db.MessageRepository,
	auditService AuditService,
	logger *zap.Logger,
) GroupService {
	return &groupService{
		userRepo:     userRepo,
		groupRepo:    groupRepo,
		messageRepo:  messageRepo,
		auditService: auditService,
		logger:       logger,
	}
}

// CreateGroup creates a group owned by actor. The actor always comes first in
// the member list, followed by memberIDs in the given order without duplicates.
func (s *groupService) CreateGroup(ctx context.Context, actorID, name string, memberIDs []string) (*models.GroupChat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one member is required", ErrInvalidInput)
	}

	members := []string{actorID}
	seen := map[string]bool{actorID: true}
	for _, id := range memberIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: empty member ID", ErrInvalidInput)
		}
		if seen[id] {
			continue
		}
		if _, err := s.userRepo.GetByID(ctx, id); err != nil {
			return nil, storeErr(err, "member '%s'", id)
		}
		seen[id] = true
		members = append(members, id)
	}

	group := &models.GroupChat{
		Name:      name,
		CreatorID: actorID,
		Members:   members,
	}
	if _, err := s.groupRepo.Create(ctx, group); err != nil {
		return nil, storeErr(err, "create group '%s'", name)
	}
	groupEvents.WithLabelValues("created").Inc()
	s.logger.Info("Group created",
		zap.String("groupID", group.ID),
		zap.String("creatorID", actorID),
		zap.Int("members", len(members)))
	return group, nil
}

// LeaveGroup removes actor from the group. The last member leaving deletes the
// group with its messages; a leaving creator hands ownership to the first
// remaining member.
func (s *groupService) LeaveGroup(ctx context.Context, actorID, groupID string) error {
	var transferredTo string
	group, err := s.groupRepo.Mutate(ctx, groupID, func(g *models.GroupChat) error {
		transferredTo = ""
		if !g.HasMember(actorID) {
			return errNotInGroup
		}
		if len(g.Members) == 1 {
			return errLastMember
		}
		remaining := make([]string, 0, len(g.Members)-1)
		for _, m := range g.Members {
			if m != actorID {
				remaining = append(remaining, m)
			}
		}
		g.Members = remaining
		if g.CreatorID == actorID || !g.HasMember(g.CreatorID) {
			g.CreatorID = remaining[0]
			transferredTo = remaining[0]
		}
		return nil
	})
	switch {
	case errors.Is(err, errNotInGroup):
		return fmt.Errorf("%w: '%s' is not a member of group '%s'", ErrNotFound, actorID, groupID)
	case errors.Is(err, errLastMember):
		return s.deleteWithMessages(ctx, actorID, groupID, models.AuditGroupCascadeDelete)
	case err != nil:
		return storeErr(err, "leave group '%s'", groupID)
	}

	groupEvents.WithLabelValues("left").Inc()
	fields := []zap.Field{zap.String("groupID", groupID), zap.String("userID", actorID), zap.Int("remaining", len(group.Members))}
	if transferredTo != "" {
		groupEvents.WithLabelValues("ownership_transferred").Inc()
		fields = append(fields, zap.String("newCreatorID", transferredTo))
	}
	s.logger.Info("Member left group", fields...)
	return nil
}

// DeleteGroup deletes the group and its messages. Only the creator may do this.
func (s *groupService) DeleteGroup(ctx context.Context, actorID, groupID string) error {
	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return storeErr(err, "group '%s'", groupID)
	}
	if group.CreatorID != actorID {
		return fmt.Errorf("%w: '%s' does not own group '%s'", ErrNotOwner, actorID, groupID)
	}
	return s.deleteWithMessages(ctx, actorID, groupID, models.AuditGroupDelete)
}

// deleteWithMessages always attempts message deletion before the group
// document. If the messages cannot be removed the group is still deleted and
// the leftover messages are reported as orphans.
func (s *groupService) deleteWithMessages(ctx context.Context, actorID, groupID, action string) error {
	channel := models.ChannelRef{Kind: models.ChannelGroup, ID: groupID}
	orphaned := false
	if err := s.messageRepo.DeleteAll(ctx, channel); err != nil {
		orphaned = true
		orphanedMessageCleanups.Inc()
		s.logger.Warn("Failed to delete group messages; deleting group anyway",
			zap.String("groupID", groupID), zap.Error(err))
	}
	if err := s.groupRepo.Delete(ctx, groupID); err != nil {
		return storeErr(err, "delete group '%s'", groupID)
	}

	event := "deleted"
	if action == models.AuditGroupCascadeDelete {
		event = "cascade_deleted"
	}
	groupEvents.WithLabelValues(event).Inc()
	s.logger.Info("Group deleted", zap.String("groupID", groupID), zap.String("userID", actorID), zap.String("reason", event))
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     actorID,
		Action:     action,
		TargetType: "GROUP",
		TargetID:   groupID,
		Details:    map[string]interface{}{"orphanedMessages": orphaned},
	})
	return nil
}

func (s *groupService) ListGroups(ctx context.Context, actorID string) ([]models.GroupChat, error) {
	groups, err := s.groupRepo.ListForMember(ctx, actorID)
	if err != nil {
		return nil, storeErr(err, "list groups of '%s'", actorID)
	}
	return groups, nil
}
