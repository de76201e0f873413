package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frp-bot/internal/api"
	"frp-bot/internal/bot"
	"frp-bot/internal/platform/config"
	"frp-bot/internal/platform/logger"
	"frp-bot/internal/platform/server"
	"frp-bot/internal/security/audit"
	"frp-bot/internal/security/keystore"
	"frp-bot/internal/storage/credentials"
)

func main() {
	if err := mainNoExit(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// mainNoExit 分離主要邏輯以避免 exitAfterDefer 問題，確保 defer 函數正常執行.
func mainNoExit() error {
	// 初始化日誌.
	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()

	ctx := context.Background()

	// 載入配置.
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.Get()
	logger.Info(ctx, "配置載入成功", logger.WithDetails(map[string]interface{}{
		"env": config.GetEnv(),
	}))

	// Token 只從環境變數讀取，不進配置檔案.
	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		logger.Error(ctx, "未設置 DISCORD_TOKEN 環境變量")
		return fmt.Errorf("missing DISCORD_TOKEN")
	}

	// 初始化密鑰：檔案不存在時自動生成.
	ks := keystore.New(config.KeyFilePath())
	if err := ks.EnsureKey(); err != nil {
		logger.Error(ctx, "密鑰初始化失敗", logger.WithDetails(map[string]interface{}{"error": err.Error()}))
		return fmt.Errorf("encryption initialization failed")
	}

	// 初始化憑證存儲.
	store := credentials.New(config.CredentialsFilePath(), ks)
	if err := store.Initialize(); err != nil {
		logger.Error(ctx, "憑證存儲初始化失敗", logger.WithDetails(map[string]interface{}{"error": err.Error()}))
		return fmt.Errorf("storage initialization failed")
	}

	// TaiwanFRP API 客戶端.
	client := api.NewClient(cfg.API.BaseURL, cfg.API.MonitorURL)

	// 審計服務.
	auditSvc := audit.NewAuditService(cfg.Audit.Enabled)

	// 創建並啟動機器人.
	b, err := bot.New(token, store, client, auditSvc, cfg)
	if err != nil {
		logger.Error(ctx, "機器人創建失敗", logger.WithDetails(map[string]interface{}{"error": err.Error()}))
		return fmt.Errorf("bot initialization failed")
	}
	if err := b.Start(ctx); err != nil {
		logger.Error(ctx, "機器人啟動失敗", logger.WithDetails(map[string]interface{}{"error": err.Error()}))
		return fmt.Errorf("bot startup failed")
	}
	defer func() {
		if err := b.Stop(); err != nil {
			logger.Errorf(ctx, "關閉 Discord 連線失敗: %v", err)
		}
	}()

	// 啟動管理伺服器（健康檢查）.
	shutdownServer := server.Start(b.Ready)

	logger.Info(ctx, "[System] 服務啟動完成")

	// 等待中斷信號.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "正在關閉服務...", logger.WithAction("shutdown"))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := shutdownServer(shutdownCtx); err != nil {
		logger.Errorf(ctx, "管理伺服器關閉失敗: %v", err)
	}

	return nil
}
