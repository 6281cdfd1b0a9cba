package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/core"
	"github.com/example/quakealert/internal/models"
)

// GroupHandler handles group chat lifecycle endpoints.
type GroupHandler struct {
	groupService core.GroupService
	logger       *zap.Logger
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(gs core.GroupService, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{groupService: gs, logger: logger}
}

// CreateGroup handles POST /groups
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req models.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	group, err := h.groupService.CreateGroup(c.Request.Context(), userID, req.Name, req.MemberIDs)
	if err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

// ListGroups handles GET /groups
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	groups, err := h.groupService.ListGroups(c.Request.Context(), userID)
	if err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	if groups == nil {
		groups = []models.GroupChat{}
	}
	c.JSON(http.StatusOK, groups)
}

// LeaveGroup handles POST /groups/:groupId/leave
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	if err := h.groupService.LeaveGroup(c.Request.Context(), userID, c.Param("groupId")); err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteGroup handles DELETE /groups/:groupId
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	if err := h.groupService.DeleteGroup(c.Request.Context(), userID, c.Param("groupId")); err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
