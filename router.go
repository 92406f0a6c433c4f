package main

import (
	"net/http"
	"time"

	"github.com/booksnap/booksnap-api/config"
	"github.com/booksnap/booksnap-api/controllers"
	"github.com/booksnap/booksnap-api/middleware"
	"github.com/booksnap/booksnap-api/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// setupRouter registers every /api/v1 route. authenticate rejects requests
// without a valid bearer token and records its subject.
func setupRouter(cfg *config.Config, zlog *zap.Logger, m *services.Marketplace, authenticate gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(zlog), middleware.Recovery(zlog))
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)

		// Browsing needs no account
		v1.GET("/books", controllers.ListBooks)
		v1.GET("/books/featured", controllers.ListFeaturedBooks)
		v1.GET("/books/:id", controllers.GetBook)
		v1.GET("/categories", controllers.ListCategories)
		v1.GET("/uploads/covers/:filename", controllers.GetUploadedCover)
	}

	authed := v1.Group("", authenticate, middleware.ResolveSession(m.Profiles, zlog))
	{
		authed.POST("/session", controllers.SignIn)
		authed.GET("/session", controllers.GetSession)
		authed.DELETE("/session", controllers.SignOut)

		authed.GET("/me/books", controllers.ListMyBooks)
		authed.POST("/books", controllers.CreateBook)
		authed.POST("/books/cover", controllers.UploadCover)
		authed.DELETE("/books/:id", controllers.DeleteBook)

		authed.GET("/cart", controllers.GetCart)
		authed.POST("/cart", controllers.AddToCart)
		authed.PATCH("/cart/:id", controllers.UpdateCartItem)
		authed.DELETE("/cart/:id", controllers.RemoveCartItem)

		authed.GET("/wishlist", controllers.GetWishlist)
		authed.GET("/wishlist/:book_id", controllers.GetWishlistStatus)
		authed.POST("/wishlist/toggle", controllers.ToggleWishlist)

		authed.GET("/conversations", controllers.ListConversations)
		authed.POST("/conversations", controllers.StartConversation)
		authed.GET("/conversations/unread-count", controllers.GetUnreadCount)
		authed.GET("/conversations/:id", controllers.GetConversation)
		authed.POST("/conversations/:id/messages", controllers.SendMessage)
		authed.POST("/conversations/:id/read", controllers.MarkConversationRead)
		authed.GET("/conversations/:id/events", controllers.StreamConversationEvents)
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "BookSnap API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Database is not connected",
			},
		})
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	tables, err := db.WithContext(c.Request.Context()).Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
