package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/dexgate/internal/config"
	"github.com/smallbiznis/dexgate/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/dexgate/internal/http/middleware"
	"github.com/smallbiznis/dexgate/internal/middleware"
	"github.com/smallbiznis/dexgate/internal/org"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, sessionMiddleware *httpmiddleware.Session, resolver *org.Resolver, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	// Health stays outside org resolution so probes need no tenant host.
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	tenant := r.Group("/", middleware.Org(resolver), middleware.OrgCORS(cfg))

	authGroup := tenant.Group("/auth")
	{
		authGroup.GET("/login", authHandler.Login)
		authGroup.GET("/callback", authHandler.Callback)
		authGroup.GET("/logout", authHandler.Logout)
		authGroup.GET("/me", sessionMiddleware.Require, authHandler.Me)
	}

	api := tenant.Group("/api/v2")
	{
		api.POST("/login-with", authHandler.LoginWith)
	}

	return r
}
