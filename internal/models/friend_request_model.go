package models

import "time"

// FriendRequest is stored under users/{recipientId}/pendingRequests.
type FriendRequest struct {
	ID        string    `json:"id" firestore:"-"`
	FromID    string    `json:"fromId" firestore:"fromId"`
	FromName  string    `json:"fromName" firestore:"fromName"`
	FromEmail string    `json:"fromEmail" firestore:"fromEmail"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
}

// SenderRef is the ContactRef the recipient stores after accepting.
func (r *FriendRequest) SenderRef() ContactRef {
	return ContactRef{ID: r.FromID, Name: r.FromName, Email: r.FromEmail}
}
