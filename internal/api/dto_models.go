package api

import "github.com/example/quakealert/internal/models"

// ErrorResponse is a generic structure for returning errors via API.
type ErrorResponse struct {
	Error   string `json:"error"`             // A high-level error message
	Code    string `json:"code,omitempty"`    // Stable machine-readable error code
	Details string `json:"details,omitempty"` // More specific details about the error, if available
}

// SuccessResponse is a generic structure for simple success messages.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// InitializeUserResponse is returned by POST /users/initialize.
type InitializeUserResponse struct {
	User    *models.User `json:"user"`
	Created bool         `json:"created"`
}

// MessagesResponse lists one channel's messages in delivery order.
type MessagesResponse struct {
	Channel  models.ChannelRef `json:"channel"`
	Messages []models.Message  `json:"messages"`
}
