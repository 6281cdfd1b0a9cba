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

// userService implements the UserService interface.
type userService struct {
	userRepo db.UserRepository
	logger   *zap.Logger
}

// NewUserService creates a new UserService instance.
func NewUserService(userRepo db.UserRepository, logger *zap.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		logger:   logger,
	}
}

// GetOrCreate retrieves a user by ID. If the user doesn't exist, it creates a new one.
// Returns the user, a boolean indicating if the user was created, and an error if any.
func (s *userService) GetOrCreate(ctx context.Context, userID, email, displayName string) (*models.User, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("%w: user ID is required", ErrInvalidInput)
	}
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = email
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		newUser := &models.User{
			ID:                  userID,
			Email:               email,
			DisplayName:         displayName,
			Contacts:            []models.ContactRef{},
			EmergencyContactIDs: []string{},
		}
		createErr := s.userRepo.Create(ctx, newUser)
		if createErr == nil {
			s.logger.Info("Created user profile", zap.String("userID", userID))
			created, err := s.userRepo.GetByID(ctx, userID)
			if err != nil {
				return nil, false, storeErr(err, "read user '%s' after create", userID)
			}
			return created, true, nil
		}
		if !errors.Is(createErr, db.ErrAlreadyExists) {
			return nil, false, storeErr(createErr, "create user '%s'", userID)
		}
		// Lost a race with a concurrent first sign-in; use the stored profile.
		user, err = s.userRepo.GetByID(ctx, userID)
	}
	if err != nil {
		return nil, false, storeErr(err, "get user '%s'", userID)
	}

	if (email != "" && user.Email != email) || (displayName != "" && user.DisplayName != displayName) {
		if email == "" {
			email = user.Email
		}
		if displayName == "" {
			displayName = user.DisplayName
		}
		if err := s.userRepo.UpdateProfile(ctx, userID, email, displayName); err != nil {
			return nil, false, storeErr(err, "update profile of user '%s'", userID)
		}
		user.Email = email
		user.DisplayName = displayName
	}
	return user, false, nil
}

func (s *userService) GetByID(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "get user '%s'", userID)
	}
	return user, nil
}
