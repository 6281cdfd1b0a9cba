package models

import "time"

// User represents a user profile document. The document ID is the Firebase Auth UID.
type User struct {
	ID                  string       `json:"id" firestore:"-"`
	Email               string       `json:"email" firestore:"email"`
	DisplayName         string       `json:"displayName" firestore:"displayName"`
	Contacts            []ContactRef `json:"contacts" firestore:"contacts"`
	EmergencyContactIDs []string     `json:"emergencyContactIds" firestore:"emergencyContactIds"`
	CreatedAt           time.Time    `json:"createdAt" firestore:"createdAt,serverTimestamp"`
	UpdatedAt           time.Time    `json:"updatedAt" firestore:"updatedAt,serverTimestamp"`
}

// ContactRef is the denormalized copy of a contact kept on both sides of a friendship.
type ContactRef struct {
	ID    string `json:"id" firestore:"id"`
	Name  string `json:"name" firestore:"name"`
	Email string `json:"email" firestore:"email"`
}

// Ref returns the ContactRef other users store for u.
func (u *User) Ref() ContactRef {
	return ContactRef{ID: u.ID, Name: u.DisplayName, Email: u.Email}
}

// Contact returns the stored ContactRef for contactID, if any.
func (u *User) Contact(contactID string) (ContactRef, bool) {
	for _, c := range u.Contacts {
		if c.ID == contactID {
			return c, true
		}
	}
	return ContactRef{}, false
}

// HasContact reports whether contactID is in the user's contact list.
func (u *User) HasContact(contactID string) bool {
	_, ok := u.Contact(contactID)
	return ok
}

// IsEmergencyContact reports whether contactID is in the emergency set.
func (u *User) IsEmergencyContact(contactID string) bool {
	for _, id := range u.EmergencyContactIDs {
		if id == contactID {
			return true
		}
	}
	return false
}
