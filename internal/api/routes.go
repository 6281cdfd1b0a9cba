package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/quakealert/internal/core"
	"github.com/example/quakealert/internal/liveview"
	"github.com/example/quakealert/internal/middleware"
)

// Services bundles the engine components the routes expose.
type Services struct {
	Users    core.UserService
	Social   core.SocialService
	Groups   core.GroupService
	Messages core.MessageService
	SOS      core.SOSService
	Live     *liveview.Synchronizer
}

// SetupRoutes configures all the application routes with their handlers and middleware.
// Global middleware (logging, recovery, CORS) is applied to router by the caller.
func SetupRoutes(
	router *gin.Engine,
	logger *zap.Logger,
	authMW *middleware.AuthMiddleware,
	services Services,
	allowedOrigins string,
) {
	userHandler := NewUserHandler(services.Users, logger)
	socialHandler := NewSocialHandler(services.Social, logger)
	groupHandler := NewGroupHandler(services.Groups, logger)
	messageHandler := NewMessageHandler(services.Messages, logger)
	sosHandler := NewSOSHandler(services.SOS, logger)
	liveHandler := NewLiveHandler(services.Live, allowedOrigins, logger)

	apiV1 := router.Group("/api/v1", authMW.VerifyToken())
	{
		users := apiV1.Group("/users")
		{
			users.POST("/initialize", userHandler.InitializeUserProfile)
			users.GET("/me", userHandler.GetCurrentUserProfile)
		}

		friends := apiV1.Group("/friends/requests")
		{
			friends.POST("", socialHandler.SendFriendRequest)
			friends.GET("", socialHandler.ListFriendRequests)
			friends.POST("/:requestId/accept", socialHandler.AcceptFriendRequest)
			friends.POST("/:requestId/decline", socialHandler.DeclineFriendRequest)
		}

		contacts := apiV1.Group("/contacts")
		{
			contacts.DELETE("/:contactId", socialHandler.RemoveContact)
			contacts.PUT("/:contactId/emergency", socialHandler.SetEmergencyContact)
		}

		groups := apiV1.Group("/groups")
		{
			groups.POST("", groupHandler.CreateGroup)
			groups.GET("", groupHandler.ListGroups)
			groups.POST("/:groupId/leave", groupHandler.LeaveGroup)
			groups.DELETE("/:groupId", groupHandler.DeleteGroup)
			groups.POST("/:groupId/messages", messageHandler.SendGroupMessage)
			groups.GET("/:groupId/messages", messageHandler.ListGroupMessages)
		}

		chats := apiV1.Group("/chats")
		{
			chats.POST("/:peerId/messages", messageHandler.SendDirectMessage)
			chats.GET("/:peerId/messages", messageHandler.ListDirectMessages)
		}

		apiV1.POST("/sos", sosHandler.SendSOS)
		apiV1.GET("/live", liveHandler.Live)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "message": "quakealert backend is healthy."})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("API routes configured under /api/v1, /health and /metrics")
}
