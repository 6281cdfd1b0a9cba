package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/core"
	"github.com/example/quakealert/internal/models"
)

// MessageHandler handles direct and group message endpoints.
type MessageHandler struct {
	messageService core.MessageService
	logger         *zap.Logger
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(ms core.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messageService: ms, logger: logger}
}

// SendDirectMessage handles POST /chats/:peerId/messages
func (h *MessageHandler) SendDirectMessage(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.messageService.SendDirectMessage(c.Request.Context(), userID, c.Param("peerId"), req.Text)
	if err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListDirectMessages handles GET /chats/:peerId/messages
func (h *MessageHandler) ListDirectMessages(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	h.list(c, userID, core.DirectChannel(userID, c.Param("peerId")))
}

// SendGroupMessage handles POST /groups/:groupId/messages
func (h *MessageHandler) SendGroupMessage(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.messageService.SendGroupMessage(c.Request.Context(), userID, c.Param("groupId"), req.Text)
	if err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListGroupMessages handles GET /groups/:groupId/messages
func (h *MessageHandler) ListGroupMessages(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	h.list(c, userID, core.GroupChannel(c.Param("groupId")))
}

func (h *MessageHandler) list(c *gin.Context, userID string, channel models.ChannelRef) {
	msgs, err := h.messageService.ListMessages(c.Request.Context(), userID, channel)
	if err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, MessagesResponse{Channel: channel, Messages: msgs})
}
