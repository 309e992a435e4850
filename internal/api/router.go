package api

import (
	"time"

	"trade-settlement-go/internal/config"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter wires the handler's routes under /api/v1 together with health and metrics.
func NewRouter(logger *zap.Logger, h *Handler, admin config.Admin, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(logger, true))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/trades", h.CreateTrade)
		v1.GET("/trades/:id", h.GetTrade)

		accounts := v1.Group("/accounts/:id")
		{
			accounts.GET("/trades", h.ListTrades)
			accounts.GET("/balance", h.GetBalance)
			accounts.GET("/statistics", h.GetStatistics)
		}

		adminGroup := v1.Group("/admin", requireAdmin(admin, logger))
		{
			adminGroup.POST("/settlements/run", h.RunSettlement)
		}
	}

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}
