package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1/portal")
	{
		v1.POST("/retrieve", handler.Retrieve)

		v1.GET("/credentials", handler.GetCredentials)
		v1.DELETE("/credentials", handler.DeleteCredentials)

		v1.POST("/timetable/prefetch", handler.PrefetchTimetable)
		v1.GET("/timetable/:week", handler.GetTimetable)

		v1.POST("/refresh", handler.TriggerRefresh)
		v1.GET("/snapshots", handler.ListSnapshots)
		v1.GET("/snapshots/latest", handler.GetLatestSnapshot)
		v1.GET("/grades/export", handler.ExportGrades)
	}
}

// NewRouter builds the engine with the standard middleware chain.
func NewRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(CORSMiddleware())
	router.Use(LoggingMiddleware())
	router.Use(RecoveryMiddleware())

	SetupRoutes(router, handler)
	return router
}
