package main

import (
	"callmgr/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to the
// node controllers through the registry.
func registerRoutes(r *gin.Engine, authMW gin.HandlerFunc, h httpapi.Handlers) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		nodes := v1.Group("/nodes")
		{
			nodes.GET("", h.ListNodes)
			nodes.GET("/:node", h.GetNode)
			nodes.GET("/:node/channels", h.GetNodeChannels)
			nodes.GET("/:node/availability", h.GetNodeAvailability)
			nodes.POST("/:node/acl/reload", h.ReloadNodeACL)
		}
	}
}
