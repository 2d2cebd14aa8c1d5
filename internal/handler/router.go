package handler

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/ratelimit"
)

// Deps bundles every handler NewRouter wires into the gin engine.
type Deps struct {
	Query         *QueryHandler
	Stream        *StreamHandler
	Session       *SessionHandler
	Conversations *ConversationsHandler
	System        *SystemHandler
	JWTSecret     string
	Limiter       ratelimit.Limiter
}

// NewRouter builds the gin engine and registers every route of spec.md
// §6.1, matching the teacher's router-construction shape (cors middleware,
// then auth, then per-resource route groups).
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())
	r.Use(RateLimitMiddleware(d.Limiter))
	r.Use(AuthMiddleware(d.JWTSecret))

	api := r.Group("/api")
	{
		api.POST("/query", d.Query.HandleQuery)
		api.POST("/query/stream", d.Stream.HandleQueryStream)
		api.GET("/stream/:id", d.Stream.HandleStream)

		api.POST("/session/clear", d.Session.Clear)
		api.POST("/session/save-memory", d.Session.SaveMemory)
		api.POST("/session/rebuild", d.Session.Rebuild)
		api.GET("/session/stats", d.Session.Stats)

		api.GET("/conversations", d.Conversations.List)
		api.GET("/conversations/:id", d.Conversations.Get)
		api.POST("/conversations", d.Conversations.Create)
		api.DELETE("/conversations/:id", d.Conversations.Delete)

		api.GET("/system/info", d.System.GetSystemInfo)
	}

	return r
}

// RateLimitMiddleware gates requests through limiter by session id (falling
// back to client IP for a caller that omits X-Session-ID), per spec.md
// §6.3's RATELIMIT_DEFAULT. A limiter backend error is logged and the
// request is let through, since a rate limiter that is itself unavailable
// must not take the whole API down with it.
func RateLimitMiddleware(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(sessionIDHeader)
		if key == "" {
			key = c.ClientIP()
		}

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Errorf(c.Request.Context(), "ratelimit: backend error for key %s: %v", key, err)
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
