package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/core"
	"github.com/example/quakealert/internal/middleware"
)

// UserHandler handles session start and profile endpoints.
type UserHandler struct {
	userService core.UserService
	logger      *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(us core.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{userService: us, logger: logger}
}

// InitializeUserProfile handles POST /users/initialize. It is called after the
// client signs in to make sure the profile document exists and is current.
func (h *UserHandler) InitializeUserProfile(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	email := c.GetString(middleware.ContextUserEmail)
	displayName := c.GetString(middleware.ContextUserDisplayName)

	user, created, err := h.userService.GetOrCreate(c.Request.Context(), userID, email, displayName)
	if err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, InitializeUserResponse{User: user, Created: created})
}

// GetCurrentUserProfile handles GET /users/me.
func (h *UserHandler) GetCurrentUserProfile(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	user, err := h.userService.GetByID(c.Request.Context(), userID)
	if err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
