package core

import (
	"errors"
	"fmt"

	"github.com/example/quakealert/internal/db"
)

// Error taxonomy of the engine. Callers match with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrEmptyMessage        = fmt.Errorf("%w: message text is empty", ErrInvalidInput)
	ErrAlreadyConnected    = errors.New("users are already connected")
	ErrDuplicateRequest    = errors.New("a friend request to this user is already pending")
	ErrSelfReference       = errors.New("cannot target yourself")
	ErrNotAContact         = errors.New("user is not a contact")
	ErrNotMember           = errors.New("user is not a member of the group")
	ErrNotOwner            = errors.New("user is not the owner of the group")
	ErrNoEmergencyContacts = errors.New("no emergency contacts configured")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// storeErr translates a repository error. Not-found becomes ErrNotFound, every
// other failure ErrStoreUnavailable, which means nothing was committed.
func storeErr(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, msg, err)
}
