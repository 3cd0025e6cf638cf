package handlers

import (
	"net/http"
	"time"

	"shadowpool/internal/db"

	"github.com/gin-gonic/gin"
)

// PingHandler liveness probe.
// GET /ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// HealthHandler readiness probe: reports database connectivity.
// GET /health
func HealthHandler(c *gin.Context) {
	status := "ok"
	code := http.StatusOK

	if db.DB != nil {
		sqlDB, err := db.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
