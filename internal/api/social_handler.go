package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/core"
	"github.com/example/quakealert/internal/models"
)

// SocialHandler handles friend requests and contacts.
type SocialHandler struct {
	socialService core.SocialService
	logger        *zap.Logger
}

// NewSocialHandler creates a new SocialHandler.
func NewSocialHandler(ss core.SocialService, logger *zap.Logger) *SocialHandler {
	return &SocialHandler{socialService: ss, logger: logger}
}

// SendFriendRequest handles POST /friends/requests
func (h *SocialHandler) SendFriendRequest(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req models.SendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.socialService.SendFriendRequest(c.Request.Context(), userID, req.Email)
	if err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListFriendRequests handles GET /friends/requests
func (h *SocialHandler) ListFriendRequests(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	reqs, err := h.socialService.ListPendingRequests(c.Request.Context(), userID)
	if err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	if reqs == nil {
		reqs = []models.FriendRequest{}
	}
	c.JSON(http.StatusOK, reqs)
}

// AcceptFriendRequest handles POST /friends/requests/:requestId/accept
func (h *SocialHandler) AcceptFriendRequest(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	if err := h.socialService.AcceptFriendRequest(c.Request.Context(), userID, c.Param("requestId")); err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Friend request accepted"})
}

// DeclineFriendRequest handles POST /friends/requests/:requestId/decline
func (h *SocialHandler) DeclineFriendRequest(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	if err := h.socialService.DeclineFriendRequest(c.Request.Context(), userID, c.Param("requestId")); err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Friend request declined"})
}

// RemoveContact handles DELETE /contacts/:contactId
func (h *SocialHandler) RemoveContact(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	if err := h.socialService.RemoveContact(c.Request.Context(), userID, c.Param("contactId")); err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetEmergencyContact handles PUT /contacts/:contactId/emergency
func (h *SocialHandler) SetEmergencyContact(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req models.SetEmergencyContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	contactID := c.Param("contactId")
	if err := h.socialService.SetEmergencyContact(c.Request.Context(), userID, contactID, *req.Enabled); err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contactId": contactID, "enabled": *req.Enabled})
}
