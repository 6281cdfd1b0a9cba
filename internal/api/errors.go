package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/core"
	"github.com/example/quakealert/internal/middleware"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: ErrEmptyMessage must be matched before ErrInvalidInput.
var errorMappings = []errorMapping{
	{core.ErrNotFound, http.StatusNotFound, "not_found"},
	{core.ErrEmptyMessage, http.StatusBadRequest, "empty_message"},
	{core.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{core.ErrSelfReference, http.StatusBadRequest, "self_reference"},
	{core.ErrNotAContact, http.StatusBadRequest, "not_a_contact"},
	{core.ErrAlreadyConnected, http.StatusConflict, "already_connected"},
	{core.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
	{core.ErrNotMember, http.StatusForbidden, "not_member"},
	{core.ErrNotOwner, http.StatusForbidden, "not_owner"},
	{core.ErrNoEmergencyContacts, http.StatusUnprocessableEntity, "no_emergency_contacts"},
	{core.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
}

// classifyError returns the HTTP status and error response for a core error.
func classifyError(err error) (int, ErrorResponse) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, ErrorResponse{Error: m.target.Error(), Code: m.code, Details: err.Error()}
		}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "An unexpected internal server error occurred.", Code: "internal"}
}

// mapCoreError writes the error response for err. Unexpected errors are logged
// and their details withheld from the client.
func mapCoreError(c *gin.Context, logger *zap.Logger, err error) {
	status, resp := classifyError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		if status == http.StatusInternalServerError {
			resp.Details = ""
		}
	}
	_ = c.Error(err)
	c.JSON(status, resp)
}

// actorID returns the authenticated user id, or writes 401 and returns false.
func actorID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "User ID not found in context", Code: "unauthenticated"})
		return "", false
	}
	return userID, true
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Code: "invalid_input", Details: err.Error()})
}
