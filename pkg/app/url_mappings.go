package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/threadview/threadview/internal/controllers"
	"github.com/threadview/threadview/internal/middleware"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", func(c *gin.Context) {
		if err := app.Store.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "up"})
	})
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	heartbeat := time.Duration(app.Config.StreamHeartbeatSeconds) * time.Second

	v1 := app.Engine.Group("/v1")
	agent := v1.Group("/threads", middleware.AuthMiddleware(app.AgentValidator, app.Config))
	client := v1.Group("/threads", middleware.AuthMiddleware(app.ClientValidator, app.Config))
	{
		agent.POST("/:id/events",
			middleware.RateLimitIngest(app.RateLimiter, app.Config),
			middleware.RequireScope("threads:ingest"),
			controllers.NewIngestEventController(app.Threads).Handle)

		client.GET("/:id/stream",
			middleware.RequireScope("threads:read"),
			controllers.NewStreamController(app.Threads, heartbeat).Handle)
		client.GET("/:id/tasks",
			middleware.RequireScope("threads:read"),
			controllers.NewGetTasksController(app.Threads).Handle)
		client.GET("/:id/artifacts/:artifactID/preview",
			middleware.RequireScope("threads:read"),
			controllers.NewPreviewController(app.Threads, app.Preview).Handle)
		client.POST("/:id/resume",
			middleware.RateLimitResume(app.RateLimiter, app.Config),
			middleware.RequireScope("threads:resume"),
			controllers.NewResumeController(app.Approvals).Handle)
		client.DELETE("/:id",
			middleware.RequireScope("threads:clear"),
			controllers.NewClearThreadController(app.Threads).Handle)

		admin := v1.Group("/admin",
			middleware.AuthMiddleware(app.ClientValidator, app.Config),
			middleware.RequireAdmin(),
			middleware.RateLimitAdmin(app.RateLimiter, app.Config))
		admin.GET("/threads", controllers.NewAdminThreadsController(app.Threads).Handle)
	}
}
