package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classforge/assessment-engine/internal/services"
	"github.com/classforge/assessment-engine/internal/validator"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
	resultHandler  *ResultHandler
	serviceManager services.ServiceManager
}

func NewHandlerManager(serviceManager services.ServiceManager, v *validator.Validator, logger *slog.Logger) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(serviceManager.Sessions(), v, logger),
		resultHandler:  NewResultHandler(serviceManager.Ranking(), serviceManager.Browser(), v, logger),
		serviceManager: serviceManager,
	}
}

// SetupRoutes sets up all API routes.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.healthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(StudentAuthMiddleware())
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("/:attempt_id", hm.sessionHandler.GetSession)
			sessions.POST("/:attempt_id/resume", hm.sessionHandler.ResumeSession)
			sessions.PUT("/:attempt_id/answers", hm.sessionHandler.SaveAnswer)
			sessions.POST("/:attempt_id/submit", hm.sessionHandler.SubmitSession)
			sessions.DELETE("/:attempt_id", hm.sessionHandler.AbortSession)
		}

		assignments := v1.Group("/assignments")
		{
			assignments.GET("/:id/can-start", hm.sessionHandler.CanStart)
			assignments.GET("/:id/ranking", hm.resultHandler.GetRanking)
			assignments.GET("/:id/stats", hm.resultHandler.GetStats)
			assignments.GET("/:id/attempts", hm.resultHandler.BrowseAttempts)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:attempt_id/summary", hm.resultHandler.GetSummary)
		}
	}
}

func (hm *HandlerManager) healthCheck(c *gin.Context) {
	if err := hm.serviceManager.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "assessment-engine",
	})
}
