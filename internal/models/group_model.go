package models

import "time"

// GroupChat is a group conversation. While the document exists CreatorID is
// one of Members and Members is non-empty.
type GroupChat struct {
	ID        string    `json:"id" firestore:"-"`
	Name      string    `json:"name" firestore:"name"`
	CreatorID string    `json:"creatorId" firestore:"creatorId"`
	Members   []string  `json:"members" firestore:"members"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt,serverTimestamp"`
}

// HasMember reports whether userID is currently a member.
func (g *GroupChat) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}
