package db

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/models"
)

// firestoreUserRepository implements the UserRepository interface using Firestore.
type firestoreUserRepository struct {
	client *firestore.Client
	logger *zap.Logger
}

func decodeUser(doc *firestore.DocumentSnapshot) (models.User, error) {
	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return user, err
	}
	user.ID = doc.Ref.ID
	return user, nil
}

// Create adds a new user document. The user.ID (Firebase Auth UID) is used as
// the document ID. CreatedAt and UpdatedAt are set server-side.
func (r *firestoreUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return errors.New("user ID cannot be empty for Create operation")
	}
	if _, err := r.client.Collection(usersCollection).Doc(user.ID).Create(ctx, user); err != nil {
		return mapError(err, fmt.Sprintf("create user '%s'", user.ID))
	}
	return nil
}

// GetByID retrieves a user document by its ID (Firebase Auth UID).
func (r *firestoreUserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("empty user ID: %w", ErrNotFound)
	}
	docSnap, err := r.client.Collection(usersCollection).Doc(userID).Get(ctx)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("user '%s'", userID))
	}
	user, err := decodeUser(docSnap)
	if err != nil {
		return nil, fmt.Errorf("failed to decode user data for ID '%s': %w", userID, err)
	}
	return &user, nil
}

func (r *firestoreUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	q := r.client.Collection(usersCollection).Where("email", "==", email).Limit(1)
	users, err := getAll(ctx, q, decodeUser)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("user by email '%s'", email))
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user with email '%s': %w", email, ErrNotFound)
	}
	return &users[0], nil
}

func (r *firestoreUserRepository) UpdateProfile(ctx context.Context, userID, email, displayName string) error {
	_, err := r.client.Collection(usersCollection).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "email", Value: email},
		{Path: "displayName", Value: displayName},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		return mapError(err, fmt.Sprintf("update profile of user '%s'", userID))
	}
	return nil
}

func (r *firestoreUserRepository) SetEmergencyContact(ctx context.Context, userID, contactID string, enabled bool) error {
	var value interface{}
	if enabled {
		value = firestore.ArrayUnion(contactID)
	} else {
		value = firestore.ArrayRemove(contactID)
	}
	_, err := r.client.Collection(usersCollection).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "emergencyContactIds", Value: value},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		return mapError(err, fmt.Sprintf("set emergency contact of user '%s'", userID))
	}
	return nil
}

func (r *firestoreUserRepository) Watch(ctx context.Context, userID string) *Subscription[models.User] {
	return watchDoc(ctx, r.client.Collection(usersCollection).Doc(userID), decodeUser)
}
