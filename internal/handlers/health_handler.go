package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"rakshak/internal/utils"
)

type HealthHandler struct {
	version string
	started time.Time
	clients func() int
}

// NewHealthHandler reports liveness. clients may be nil.
func NewHealthHandler(version string, clients func() int) *HealthHandler {
	return &HealthHandler{version: version, started: time.Now(), clients: clients}
}

func (h *HealthHandler) Health(c *gin.Context) {
	data := gin.H{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	if h.clients != nil {
		data["websocket_clients"] = h.clients()
	}
	utils.SuccessResponse(c, "healthy", data)
}
