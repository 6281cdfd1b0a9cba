package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/db"
	"github.com/example/quakealert/internal/models"
	"github.com/example/quakealert/pkg/cache"
)

const emailCachePrefix = "user-email:"

// socialService implements SocialService.
type socialService struct {
	userRepo     db.UserRepository
	requestRepo  db.FriendRequestRepository
	batches      db.BatchWriter
	auditService AuditService
	directory    cache.Cache
	directoryTTL time.Duration
	validate     *validator.Validate
	logger       *zap.Logger
}

// NewSocialService creates a SocialService. directory may be nil, in which
// case every email lookup goes to the store.
func NewSocialService(
	userRepo db.UserRepository,
	requestRepo db.FriendRequestRepository,
	batches db.BatchWriter,
	auditService AuditService,
	directory cache.Cache,
	directoryTTL time.Duration,
	logger *zap.Logger,
) SocialService {
	return &socialService{
		userRepo:     userRepo,
		requestRepo:  requestRepo,
		batches:      batches,
		auditService: auditService,
		directory:    directory,
		directoryTTL: directoryTTL,
		validate:     validator.New(),
		logger:       logger,
	}
}

func (s *socialService) SendFriendRequest(ctx context.Context, actorID, targetEmail string) (*models.FriendRequest, error) {
	email := strings.ToLower(strings.TrimSpace(targetEmail))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: malformed email '%s'", ErrInvalidInput, targetEmail)
	}

	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, storeErr(err, "get sender '%s'", actorID)
	}
	target, err := s.resolveEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if target.ID == actor.ID {
		return nil, fmt.Errorf("%w: '%s' is your own email", ErrSelfReference, email)
	}
	if actor.HasContact(target.ID) {
		return nil, fmt.Errorf("%w: '%s' is already a contact", ErrAlreadyConnected, email)
	}
	existing, err := s.requestRepo.FindFrom(ctx, target.ID, actor.ID)
	if err == nil {
		return nil, fmt.Errorf("%w: request '%s' to '%s'", ErrDuplicateRequest, existing.ID, email)
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, storeErr(err, "check pending requests of '%s'", target.ID)
	}

	req := &models.FriendRequest{
		FromID:    actor.ID,
		FromName:  actor.DisplayName,
		FromEmail: actor.Email,
	}
	// Requests are keyed by sender, so a concurrent duplicate loses here.
	if _, err := s.requestRepo.Create(ctx, target.ID, req); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: to '%s'", ErrDuplicateRequest, email)
		}
		return nil, storeErr(err, "create friend request to '%s'", target.ID)
	}
	friendRequests.WithLabelValues("sent").Inc()
	s.logger.Info("Friend request sent",
		zap.String("fromID", actor.ID),
		zap.String("toID", target.ID),
		zap.String("requestID", req.ID))
	return req, nil
}

// resolveEmail finds the user registered with email, consulting the directory
// cache first. A cached id that no longer matches is evicted.
func (s *socialService) resolveEmail(ctx context.Context, email string) (*models.User, error) {
	key := emailCachePrefix + email
	if s.directory != nil {
		cachedID, err := s.directory.Get(ctx, key)
		if err != nil {
			s.logger.Warn("Email directory lookup failed", zap.String("email", email), zap.Error(err))
		} else if cachedID != "" {
			user, err := s.userRepo.GetByID(ctx, cachedID)
			switch {
			case err == nil && user.Email == email:
				return user, nil
			case err == nil || errors.Is(err, db.ErrNotFound):
				if delErr := s.directory.Delete(ctx, key); delErr != nil {
					s.logger.Warn("Failed to evict stale email directory entry", zap.String("email", email), zap.Error(delErr))
				}
			default:
				return nil, storeErr(err, "get user '%s'", cachedID)
			}
		}
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, storeErr(err, "no user with email '%s'", email)
	}
	if s.directory != nil {
		if err := s.directory.Set(ctx, key, user.ID, s.directoryTTL); err != nil {
			s.logger.Warn("Failed to cache email directory entry", zap.String("email", email), zap.Error(err))
		}
	}
	return user, nil
}

// AcceptFriendRequest links both users and consumes the request in one batch.
// A crossed request in the other direction is discarded in the same batch.
// Sides that already hold the contact are left untouched.
func (s *socialService) AcceptFriendRequest(ctx context.Context, actorID, requestID string) error {
	req, err := s.requestRepo.GetByID(ctx, actorID, requestID)
	if err != nil {
		return storeErr(err, "friend request '%s'", requestID)
	}
	if req.FromID == actorID {
		return fmt.Errorf("%w: request '%s' was sent by the recipient", ErrSelfReference, requestID)
	}

	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return storeErr(err, "get recipient '%s'", actorID)
	}
	sender, err := s.userRepo.GetByID(ctx, req.FromID)
	if err != nil {
		return storeErr(err, "get sender '%s'", req.FromID)
	}

	batch := s.batches.NewGraphBatch()
	if !actor.HasContact(sender.ID) {
		batch.AddContact(actor.ID, sender.Ref())
	}
	if !sender.HasContact(actor.ID) {
		batch.AddContact(sender.ID, actor.Ref())
	}
	batch.DeleteFriendRequest(actorID, requestID)
	batch.DiscardFriendRequest(sender.ID, actorID)
	if err := batch.Commit(ctx); err != nil {
		return storeErr(err, "accept friend request '%s'", requestID)
	}

	friendRequests.WithLabelValues("accepted").Inc()
	s.logger.Info("Friend request accepted",
		zap.String("requestID", requestID),
		zap.String("fromID", sender.ID),
		zap.String("toID", actor.ID))
	return nil
}

func (s *socialService) DeclineFriendRequest(ctx context.Context, actorID, requestID string) error {
	if err := s.requestRepo.Delete(ctx, actorID, requestID); err != nil {
		return storeErr(err, "decline friend request '%s'", requestID)
	}
	friendRequests.WithLabelValues("declined").Inc()
	return nil
}

// RemoveContact unlinks actor and contact on both sides and clears both
// emergency flags in one batch. Removing an absent contact is a no-op; a
// one-sided leftover on the counterparty is cleaned up as well.
func (s *socialService) RemoveContact(ctx context.Context, actorID, contactID string) error {
	if contactID == "" {
		return fmt.Errorf("%w: contact ID is required", ErrInvalidInput)
	}
	if contactID == actorID {
		return fmt.Errorf("%w: cannot remove yourself as a contact", ErrSelfReference)
	}

	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return storeErr(err, "get user '%s'", actorID)
	}
	counterpart, err := s.userRepo.GetByID(ctx, contactID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return storeErr(err, "get contact '%s'", contactID)
	}

	batch := s.batches.NewGraphBatch()
	writes := 0
	if ref, ok := actor.Contact(contactID); ok {
		batch.RemoveContact(actorID, ref)
		writes++
	}
	if actor.IsEmergencyContact(contactID) {
		batch.RemoveEmergencyContact(actorID, contactID)
		writes++
	}
	if counterpart != nil {
		if ref, ok := counterpart.Contact(actorID); ok {
			batch.RemoveContact(contactID, ref)
			writes++
		}
		if counterpart.IsEmergencyContact(actorID) {
			batch.RemoveEmergencyContact(contactID, actorID)
			writes++
		}
	}
	if writes == 0 {
		return nil
	}
	if err := batch.Commit(ctx); err != nil {
		return storeErr(err, "remove contact '%s'", contactID)
	}

	s.logger.Info("Contact removed", zap.String("userID", actorID), zap.String("contactID", contactID))
	recordAudit(ctx, s.auditService, s.logger, models.AuditLog{
		UserID:     actorID,
		Action:     models.AuditContactRemove,
		TargetType: "USER",
		TargetID:   contactID,
	})
	return nil
}

func (s *socialService) SetEmergencyContact(ctx context.Context, actorID, contactID string, enabled bool) error {
	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return storeErr(err, "get user '%s'", actorID)
	}
	if !actor.HasContact(contactID) {
		return fmt.Errorf("%w: '%s'", ErrNotAContact, contactID)
	}
	if actor.IsEmergencyContact(contactID) == enabled {
		return nil
	}
	if err := s.userRepo.SetEmergencyContact(ctx, actorID, contactID, enabled); err != nil {
		return storeErr(err, "update emergency contacts of '%s'", actorID)
	}
	return nil
}

func (s *socialService) ListPendingRequests(ctx context.Context, actorID string) ([]models.FriendRequest, error) {
	reqs, err := s.requestRepo.ListPending(ctx, actorID)
	if err != nil {
		return nil, storeErr(err, "list friend requests of '%s'", actorID)
	}
	return reqs, nil
}
