package router

import (
	"net/http"
	"strconv"
	"strings"

	"shadowpool/internal/app"
	"shadowpool/internal/config"
	"shadowpool/internal/handlers"
	"shadowpool/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// SetupRouter builds the HTTP surface from the service container.
func SetupRouter(container *app.ServiceContainer) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())

	r.GET("/ping", handlers.PingHandler)
	r.GET("/health", handlers.HealthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws/events", container.WebSocketHandler.StreamHandler)

	api := r.Group("/api")
	{
		api.POST("/pools", container.PoolHandler.CreatePoolHandler)
		api.GET("/pools", container.PoolHandler.ListPoolsHandler)
		api.GET("/pools/:id", container.PoolHandler.GetPoolHandler)
		api.GET("/pools/:id/roots", container.PoolHandler.GetRootsHandler)

		api.POST("/pools/:id/deposit", container.TransactionHandler.DepositHandler)
		api.POST("/pools/:id/withdraw", container.TransactionHandler.WithdrawHandler)

		api.GET("/pools/:id/deposits", container.EventHandler.ListDepositsHandler)
		api.GET("/pools/:id/deposits/:commitment", container.EventHandler.GetDepositHandler)
		api.GET("/pools/:id/withdrawals", container.EventHandler.ListWithdrawalsHandler)

		api.POST("/admin/login", container.AuthHandler.LoginHandler)

		authMiddleware := middleware.NewAuthMiddleware(logrus.StandardLogger())
		admin := api.Group("/admin", authMiddleware.RequireAdmin())
		{
			admin.PUT("/pools/:id/enabled", container.AdminHandler.SetEnabledHandler)
			admin.GET("/stuck-payouts", container.AdminHandler.ListStuckPayoutsHandler)
			admin.POST("/stuck-payouts/:id/retry", container.AdminHandler.RetryStuckPayoutHandler)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "route not found"})
	})

	return r
}

// corsMiddleware applies the configured CORS policy. With no configured
// origins every origin is allowed, the development default.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := "*"
		allowCredentials := false
		maxAge := 3600
		if cfg := config.AppConfig; cfg != nil && len(cfg.CORS.AllowedOrigins) > 0 {
			allowed = ""
			for _, o := range cfg.CORS.AllowedOrigins {
				if strings.EqualFold(o, origin) {
					allowed = origin
					break
				}
			}
			allowCredentials = cfg.CORS.AllowCredentials
			if cfg.CORS.MaxAge > 0 {
				maxAge = cfg.CORS.MaxAge
			}
		}

		if allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))
			if allowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
