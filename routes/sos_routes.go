package routes

import (
	"github.com/gin-gonic/gin"

	"rakshak/internal/handlers"
	"rakshak/pkg/websocket"
)

// SetupSOSRoutes mounts the control API under /api/v1. auth guards every
// route including the websocket.
func SetupSOSRoutes(r *gin.Engine, auth gin.HandlerFunc, sosHandler *handlers.SOSHandler, wsHandler *websocket.Handler, wsPath string) {
	v1 := r.Group("/api/v1")
	v1.Use(auth)
	{
		sos := v1.Group("/sos")
		{
			sos.POST("/toggle", sosHandler.Toggle)
			sos.GET("/status", sosHandler.GetStatus)
			sos.GET("/evidence", sosHandler.GetEvidence)
		}

		user := v1.Group("/user")
		{
			user.PUT("", sosHandler.SetUser)
			user.DELETE("", sosHandler.ClearUser)
			user.PUT("/code-word", sosHandler.SetCodeWord)
		}
	}

	if wsHandler != nil {
		r.GET(wsPath, auth, wsHandler.HandleWebSocket)
	}
}

func SetupHealthRoutes(r *gin.Engine, healthHandler *handlers.HealthHandler) {
	r.GET("/health", healthHandler.Health)
}
