package models

// SendFriendRequestRequest is the body of POST /friends/requests.
type SendFriendRequestRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SetEmergencyContactRequest is the body of PUT /contacts/:contactId/emergency.
// A pointer distinguishes an explicit false from a missing field.
type SetEmergencyContactRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// CreateGroupRequest is the body of POST /groups.
type CreateGroupRequest struct {
	Name      string   `json:"name" binding:"required"`
	MemberIDs []string `json:"memberIds" binding:"required,min=1,dive,required"`
}

// SendMessageRequest is the body of the message endpoints.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// SOSRequest is the body of POST /sos. Location is optional.
type SOSRequest struct {
	Location *Location `json:"location,omitempty"`
}
