package v1

import (
	"github.com/maxidea1024/gatrix-sub004/api/v1/auth"
	"github.com/maxidea1024/gatrix-sub004/api/v1/changerequests"
	"github.com/maxidea1024/gatrix-sub004/api/v1/changes"
	"github.com/maxidea1024/gatrix-sub004/api/v1/entitylocks"
	"github.com/maxidea1024/gatrix-sub004/api/v1/middleware"
	"github.com/maxidea1024/gatrix-sub004/internal/changereq"
	"github.com/maxidea1024/gatrix-sub004/internal/config"
	"github.com/maxidea1024/gatrix-sub004/internal/entitylock"
	"github.com/maxidea1024/gatrix-sub004/internal/gateway"
	"github.com/maxidea1024/gatrix-sub004/internal/httpx"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries the wired services the API needs
type Deps struct {
	DB       *gorm.DB
	Config   *config.Config
	Gateway  *gateway.Service
	Requests *changereq.Service
	Executor *changereq.Executor
	Locks    *entitylock.Service
}

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, deps *Deps) {
	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(deps.DB, deps.Config))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			// Unified change gateway
			changesHandler := changes.NewHandler(deps.Gateway)
			changesGroup := protected.Group("/changes")
			{
				changesGroup.POST("/create", changesHandler.Create)
				changesGroup.POST("/update", changesHandler.Update)
				changesGroup.POST("/modify", changesHandler.Modify)
				changesGroup.POST("/delete", changesHandler.Delete)
			}

			// Change request lifecycle
			crHandler := changerequests.NewHandler(deps.Requests, deps.Executor)
			crGroup := protected.Group("/change-requests")
			{
				crGroup.GET("", crHandler.List)
				crGroup.GET("/:id", crHandler.Get)
				crGroup.POST("/:id/submit", crHandler.Submit)
				crGroup.POST("/:id/approve", crHandler.Approve)
				crGroup.POST("/:id/reject", crHandler.Reject)
				crGroup.POST("/:id/reopen", crHandler.Reopen)
				crGroup.POST("/:id/execute", crHandler.Execute)
				crGroup.POST("/:id/revert", crHandler.Revert)
			}

			// Edit-session locks
			locksHandler := entitylocks.NewHandler(deps.Locks)
			locksGroup := protected.Group("/entity-locks")
			{
				locksGroup.POST("/check", locksHandler.Check)
				locksGroup.POST("/acquire", locksHandler.Acquire)
				locksGroup.POST("/release", locksHandler.Release)
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	uid, _ := c.Get("uid")
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"uid":      uid,
		"username": username,
		"role":     role,
	})
}
