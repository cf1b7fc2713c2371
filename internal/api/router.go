package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/svi-coverage-go/internal/config"
	"github.com/jengzang/svi-coverage-go/internal/handler"
	"github.com/jengzang/svi-coverage-go/internal/middleware"
)

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, coverage *handler.CoverageHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger())

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "SVI coverage API is running",
		})
	})

	// API 路由组
	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(cfg.APIRateLimit, cfg.APIRateBurst), middleware.Auth(cfg.JWTSecret))
	{
		// 网格覆盖
		cells := api.Group("/grid-cells")
		{
			cells.GET("", coverage.ListCells)
			cells.GET("/:id", coverage.GetCell)
		}

		api.GET("/coverage/report", coverage.GetReport)

		// 流水线运行记录
		runs := api.Group("/runs")
		{
			runs.GET("", coverage.ListRuns)
			runs.GET("/:id", coverage.GetRun)
		}
	}

	return r
}
