package models

import (
	"fmt"
	"time"
)

// SystemSenderID marks messages produced by the service rather than a user.
const SystemSenderID = "system"

// ChannelKind distinguishes direct chats from group chats.
type ChannelKind string

const (
	ChannelDirect ChannelKind = "direct"
	ChannelGroup  ChannelKind = "group"
)

// ChannelRef addresses one ordered message sequence. For direct chats ID is
// the canonical pair id, for group chats it is the group document id.
type ChannelRef struct {
	Kind ChannelKind `json:"kind"`
	ID   string      `json:"id"`
}

func (c ChannelRef) String() string {
	return fmt.Sprintf("%s/%s", c.Kind, c.ID)
}

// Message is immutable once written. Timestamp is assigned by the store.
type Message struct {
	ID         string    `json:"id" firestore:"-"`
	Text       string    `json:"text" firestore:"text"`
	SenderID   string    `json:"senderId" firestore:"senderId"`
	SenderName string    `json:"senderName,omitempty" firestore:"senderName,omitempty"`
	Timestamp  time.Time `json:"timestamp" firestore:"timestamp,serverTimestamp"`
}

// IsSystem reports whether the message was generated by the service.
func (m *Message) IsSystem() bool {
	return m.SenderID == SystemSenderID
}

// Location is an optional geographic position attached to an SOS alert.
type Location struct {
	Lat float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lng float64 `json:"lng" binding:"gte=-180,lte=180"`
}
