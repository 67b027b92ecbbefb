package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter builds the HTTP API. mcpHandler, when non-nil, is mounted at
// mcpPath behind the same auth as the REST routes.
func SetupRouter(handler *Handler, mcpHandler http.Handler, mcpPath string, isDebug bool) *gin.Engine {
	var r *gin.Engine
	if isDebug {
		gin.SetMode(gin.DebugMode)
		r = gin.Default()
	} else {
		gin.SetMode(gin.ReleaseMode)
		r = gin.New()
		r.Use(gin.Recovery())
	}

	// Must run before the other middleware.
	r.Use(TraceIDMiddleware())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Trace-ID", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Trace-ID", "Mcp-Session-Id"},
		AllowCredentials: false,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/api/v1/auth/check", handler.CheckAuth)

	authMW := JWTAuthenticationMiddleware(handler.config.Auth)
	api := r.Group("/api/v1")
	api.Use(authMW)
	{
		profiles := api.Group("/profiles")
		{
			profiles.GET("", handler.ListProfiles)
			profiles.GET("/:id", handler.GetProfile)
			profiles.POST("", handler.CreateProfile)
			profiles.PUT("/:id", handler.UpdateProfile)
			profiles.DELETE("/:id", handler.DeleteProfile)
			profiles.POST("/:id/start", handler.StartProfile)
		}

		automation := api.Group("/automation")
		{
			automation.GET("/status", handler.Status)
			automation.POST("/stop", handler.StopAutomation)
			automation.POST("/pause", handler.PauseAutomation)
			automation.POST("/resume", handler.ResumeAutomation)
			automation.POST("/emergency-stop", handler.EmergencyStop)
			automation.POST("/toggle", handler.ToggleStartStop)
			automation.POST("/toggle-pause", handler.TogglePause)
			automation.GET("/failsafe", handler.GetFailsafe)
			automation.PUT("/failsafe", handler.SetFailsafe)
		}

		schedules := api.Group("/schedules")
		{
			schedules.GET("", handler.ListSchedules)
			schedules.GET("/stats", handler.ScheduleStats)
			schedules.POST("/pause-all", handler.PauseAllSchedules)
			schedules.POST("/resume-all", handler.ResumeAllSchedules)
			schedules.POST("/validate", handler.ValidateCron)
			schedules.POST("/preview", handler.PreviewSchedule)
			schedules.POST("/:id/pause", handler.PauseSchedule)
			schedules.POST("/:id/resume", handler.ResumeSchedule)
		}

		pixelAPI := api.Group("/pixel")
		{
			pixelAPI.GET("/color", handler.PixelColor)
			pixelAPI.POST("/probe", handler.ProbePixel)
			pixelAPI.POST("/watch/start", handler.StartWatcher)
			pixelAPI.POST("/watch/stop", handler.StopWatcher)
		}

		logs := api.Group("/logs")
		{
			logs.GET("", handler.ListLogs)
			logs.GET("/export", handler.ExportLogs)
			logs.DELETE("", handler.ClearLogs)
		}

		api.GET("/events", handler.StreamEvents)
		api.GET("/events/kinds", handler.EventKinds)
	}

	if mcpHandler != nil && mcpPath != "" {
		r.Any(mcpPath, authMW, gin.WrapH(mcpHandler))
	}

	return r
}
