package router

import (
	"database/sql"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/relaydesk/relaydesk/handlers"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/services"
)

// NewGinRouter wires the versioned notification configuration API. redis is
// optional; without it identifier resolution simply skips its cache.
func NewGinRouter(pg *sql.DB, rdb *redis.Client) *gin.Engine {
	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.NoMethod(handlers.MethodNotAllowed)

	// Initialize services
	resolver := services.NewResolver(pg, rdb)
	contactService := services.NewContactService(pg, resolver)
	groupService := services.NewContactgroupService(pg, resolver)
	channelService := services.NewChannelService(pg, resolver)

	// Initialize handlers
	pageSize := config.App.PageSize
	contactHandler := handlers.NewContactHandler(contactService, pageSize)
	groupHandler := handlers.NewContactgroupHandler(groupService, pageSize)
	channelHandler := handlers.NewChannelHandler(channelService, pageSize)
	healthHandler := handlers.NewHealthHandler(pg)
	authMiddleware := handlers.NewAuthMiddleware(pg)

	// PUBLIC ENDPOINTS
	r.GET("/health", healthHandler.Health)

	// VERSIONED API (requires content negotiation and authentication)
	v1 := r.Group("/" + handlers.APIVersion)
	v1.Use(handlers.RequireAPIRequest())
	v1.Use(authMiddleware.Authenticate())
	{
		contactRoutes := v1.Group("/contacts")
		{
			contactRoutes.GET("", contactHandler.List)
			contactRoutes.POST("", contactHandler.Create)
			contactRoutes.GET("/:id", contactHandler.Get)
			contactRoutes.POST("/:id", contactHandler.Replace)
			contactRoutes.PUT("/:id", contactHandler.Upsert)
			contactRoutes.DELETE("/:id", contactHandler.Delete)
		}

		groupRoutes := v1.Group("/contact-groups")
		{
			groupRoutes.GET("", groupHandler.List)
			groupRoutes.POST("", groupHandler.Create)
			groupRoutes.GET("/:id", groupHandler.Get)
			groupRoutes.POST("/:id", groupHandler.Replace)
			groupRoutes.PUT("/:id", groupHandler.Upsert)
			groupRoutes.DELETE("/:id", groupHandler.Delete)
		}

		channelRoutes := v1.Group("/channels")
		{
			channelRoutes.GET("", channelHandler.List)
			channelRoutes.POST("", channelHandler.Create)
			channelRoutes.GET("/:id", channelHandler.Get)
			channelRoutes.POST("/:id", channelHandler.Replace)
			channelRoutes.PUT("/:id", channelHandler.Upsert)
			channelRoutes.DELETE("/:id", channelHandler.Delete)
		}

		v1.GET("/channel-types", channelHandler.ListTypes)
	}

	return r
}
