package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/core"
	"github.com/example/quakealert/internal/models"
)

// SOSHandler handles the emergency broadcast endpoint.
type SOSHandler struct {
	sosService core.SOSService
	logger     *zap.Logger
}

// NewSOSHandler creates a new SOSHandler.
func NewSOSHandler(ss core.SOSService, logger *zap.Logger) *SOSHandler {
	return &SOSHandler{sosService: ss, logger: logger}
}

// SendSOS handles POST /sos. The body, and the location in it, are optional.
func (h *SOSHandler) SendSOS(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}
	var req models.SOSRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	report, err := h.sosService.SendSOS(c.Request.Context(), userID, req.Location)
	if err != nil {
		mapCoreError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
