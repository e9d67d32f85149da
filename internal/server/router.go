// internal/server/router.go

// Package server exposes the HTTP and WebSocket surface: auth endpoints,
// the deal catalog with search/filter/sort, negotiation creation and the
// live snapshot stream.
package server

import (
	"time"

	"dealdesk/internal/common/observability"
	"dealdesk/internal/guard"
	"dealdesk/internal/models"

	"github.com/gin-gonic/gin"
)

type Config struct {
	AuthHandler        *AuthHandler
	DealHandler        *DealHandler
	NegotiationHandler *NegotiationHandler
	StreamHandler      *StreamHandler
	Guard              *guard.Middleware
	Observability      *observability.Observability
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Observability != nil {
		router.Use(requestMetrics(cfg.Observability))
	}

	api := router.Group("/v1/")
	registerAuthRoutes(api, cfg.AuthHandler)
	registerDealRoutes(api, cfg.DealHandler, cfg.Guard)
	registerNegotiationRoutes(api, cfg.NegotiationHandler, cfg.Guard)

	ws := router.Group("/ws/")
	registerStreamRoutes(ws, cfg.StreamHandler, cfg.Guard)

	return router
}

func registerAuthRoutes(router *gin.RouterGroup, h *AuthHandler) {
	auth := router.Group("/auth")
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/signin", h.SignIn)
		auth.POST("/signout", h.SignOut)
	}
}

func registerDealRoutes(router *gin.RouterGroup, h *DealHandler, g *guard.Middleware) {
	deals := router.Group("/deals")
	{
		deals.GET("", g.Require(models.RoleLender, models.RoleAdmin), h.List)
		deals.GET("/mine", g.Require(models.RoleInvestor, models.RoleAdmin), h.ListMine)
	}
}

func registerNegotiationRoutes(router *gin.RouterGroup, h *NegotiationHandler, g *guard.Middleware) {
	negotiations := router.Group("/negotiations")
	{
		negotiations.POST("", g.Require(models.RoleLender, models.RoleAdmin), h.Create)
	}
}

func registerStreamRoutes(router *gin.RouterGroup, h *StreamHandler, g *guard.Middleware) {
	router.GET("/deals", g.Require(models.RoleLender, models.RoleAdmin), h.StreamApproved)
	router.GET("/deals/mine", g.Require(models.RoleInvestor, models.RoleAdmin), h.StreamMine)
}

func requestMetrics(obs *observability.Observability) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		obs.RecordRequest(c.Request.Context(), route, statusClass(c.Writer.Status()))
		obs.RecordRequestDuration(c.Request.Context(), time.Since(start), route)
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
