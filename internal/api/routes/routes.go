package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/yoockh/hiready/internal/api/handlers"
	"github.com/yoockh/hiready/internal/api/middleware"
)

type Deps struct {
	Auth      middleware.JWTConfig
	JobInfo   *handlers.JobInfoHandler
	Interview *handlers.InterviewHandler
	User      *handlers.UserHandler
	Call      *handlers.CallHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.Auth))

	auth.PUT("/users/me", d.User.SyncMe)

	auth.POST("/job-infos", d.JobInfo.Create)
	auth.GET("/job-infos", d.JobInfo.List)
	auth.GET("/job-infos/:id", d.JobInfo.Get)
	auth.PUT("/job-infos/:id", d.JobInfo.Update)

	auth.POST("/job-infos/:id/interviews", d.Interview.Create)
	auth.GET("/job-infos/:id/interviews", d.Interview.ListByJobInfo)
	auth.GET("/interviews/:id", d.Interview.Get)
	auth.PATCH("/interviews/:id", d.Interview.Update)
	auth.GET("/interviews/:id/messages", d.Interview.Messages)
	auth.POST("/interviews/:id/feedback", d.Interview.Feedback)

	// WebSocket
	auth.GET("/ws/job-infos/:job_info_id/call", d.Call.Call)

	admin := auth.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.PUT("/users/:id/entitlements", d.User.SetEntitlements)
}
