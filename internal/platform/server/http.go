package server

import (
	"github.com/gin-gonic/gin"

	"frp-bot/internal/platform/config"
	"frp-bot/internal/platform/health"
	"frp-bot/internal/platform/middleware"
)

// securityHeadersMiddleware 添加安全標頭
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 防止點擊劫持
		c.Header("X-Frame-Options", "DENY")

		// 防止 MIME 類型嗅探
		c.Header("X-Content-Type-Options", "nosniff")

		// 推薦政策
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		c.Next()
	}
}

// Router 設定管理路由 - 只提供健康檢查
func Router(gatewayReady func() bool) *gin.Engine {
	cfg := config.Get()
	if cfg != nil && !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	// 添加請求 ID 中間件（最優先）
	r.Use(middleware.RequestIDMiddleware())

	// 添加安全標頭中間件
	r.Use(securityHeadersMiddleware())

	storagePath := config.CredentialsFilePath()
	healthHandler := health.NewHealthHandler(gatewayReady, storagePath)

	// health check
	r.GET("/health", healthHandler.HealthCheck)

	return r
}
