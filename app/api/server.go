package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/feed.xml", handler.GetFeed)

	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)

	api := r.Group("/api/v1")
	if apiAccessKey != "" {
		api.Use(authMiddleware(apiAccessKey))
		slog.Info("API endpoints require authentication")
	} else {
		slog.Warn("API endpoints are unauthenticated (API_ACCESS_KEY not set)")
	}
	{
		api.GET("/items", handler.APIListItems)
		api.POST("/items/:id/favorite", handler.APISetFavorite)
		api.POST("/items/:id/hide", handler.APISetHidden)
		api.POST("/items/:id/note", handler.APISetNote)
		api.POST("/items/:id/refresh", handler.APIRefreshItem)

		api.GET("/suggestions/sellers", handler.APISuggestSellers)
		api.GET("/suggestions/categories", handler.APISuggestCategories)
		api.GET("/suggestions/main-categories", handler.APISuggestMainCategories)

		api.GET("/watchlist", handler.APIGetWatchlist)
		api.POST("/watchlist/sellers", handler.APIAddSeller)
		api.DELETE("/watchlist/sellers/:username", handler.APIRemoveSeller)
		api.POST("/watchlist/categories", handler.APIAddCategory)
		api.DELETE("/watchlist/categories/:id", handler.APIDisableCategory)
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "eBay Watchlist",
			"version":     handler.version,
			"description": "Tracks new eBay auctions from watched sellers and categories",
			"endpoints": map[string]string{
				"feed":      "/feed.xml[?seller=<name>|category=<id>]",
				"health":    "/health",
				"stats":     "/stats",
				"items":     "/api/v1/items",
				"watchlist": "/api/v1/watchlist",
			},
			"api_status": map[string]interface{}{
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
