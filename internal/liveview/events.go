package liveview

import "github.com/example/quakealert/internal/models"

// EventKind tags the payload carried by an Event.
type EventKind string

const (
	KindProfile  EventKind = "profile"
	KindRequests EventKind = "requests"
	KindGroups   EventKind = "groups"
	KindMessages EventKind = "messages"
	KindError    EventKind = "error"

	// KindChatClosed reports that the open chat was closed by the server
	// because the user lost access to it. Err says why.
	KindChatClosed EventKind = "chat_closed"
)

// Event is one push to a session. Exactly the field matching Kind is set;
// every push carries the complete current state of its collection.
type Event struct {
	Kind EventKind

	// Profile is nil when the user document does not exist.
	Profile  *models.User
	Requests []models.FriendRequest
	Groups   []models.GroupChat

	// Channel identifies the chat a KindMessages, KindChatClosed or chat
	// KindError event belongs to.
	Channel  *models.ChannelRef
	Messages []models.Message

	Err error
}
