package server

import (
	"context"
	"net/http"
	"time"

	"frp-bot/internal/platform/config"
	"frp-bot/internal/platform/logger"
)

// Start 在背景啟動管理伺服器（健康檢查），返回優雅關閉函數。
// gatewayReady 由機器人提供，回報 Discord gateway 的連線狀態。
func Start(gatewayReady func() bool) func(context.Context) error {
	cfg := config.Get()

	router := Router(gatewayReady)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.Timeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.Timeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.LogInfof("管理伺服器正在監聽埠口: %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogErrorf("管理伺服器啟動失敗: %v", err)
		}
	}()

	return server.Shutdown
}
