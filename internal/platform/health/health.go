package health

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"frp-bot/internal/platform/config"
	"frp-bot/internal/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	// 健康狀態常數.
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusWarning   = "warning"

	// 記憶體相關常數.
	memoryMB        = 1024 * 1024
	memoryThreshold = 1024 // 1GB
)

// Handler 健康檢查處理器.
type Handler struct {
	gatewayReady func() bool
	storagePath  string
}

// NewHealthHandler 創建新的健康檢查處理器。
// gatewayReady 回報 Discord gateway 連線狀態；storagePath 是憑證存儲文件路徑。
func NewHealthHandler(gatewayReady func() bool, storagePath string) *Handler {
	return &Handler{
		gatewayReady: gatewayReady,
		storagePath:  storagePath,
	}
}

// HealthCheck 健康檢查端點.
func (h *Handler) HealthCheck(c *gin.Context) {
	cfg := config.Get()

	// 檢查 Discord gateway 連線.
	gatewayStatus := statusHealthy
	if h.gatewayReady == nil || !h.gatewayReady() {
		gatewayStatus = statusUnhealthy
	}

	// 檢查憑證存儲文件.
	storageStatus := statusHealthy
	storageError := ""
	storageDetails := gin.H{}

	if err := h.checkStorage(); err != nil {
		storageStatus = statusUnhealthy
		storageError = err.Error()
		logger.LogErrorf("健康檢查 - 憑證存儲檢查失敗: %v", err)
	} else {
		storageDetails = gin.H{"path": h.storagePath}
	}

	// 檢查系統資源.
	systemStatus := h.checkSystemResources()

	// 從環境變數讀取版本，沒有則用預設值
	appVersion := os.Getenv("APP_VERSION")
	if appVersion == "" {
		appVersion = "NO_VERSION_SET" // 預設版本號
	}

	// 回應格式.
	response := gin.H{
		"status":    statusHealthy,
		"timestamp": time.Now().Unix(),
		"app": gin.H{
			"name":    cfg.App.Name,
			"version": appVersion,
			"debug":   cfg.App.Debug,
		},
		"gateway": gin.H{
			"status": gatewayStatus,
		},
		"storage": gin.H{
			"status":  storageStatus,
			"error":   storageError,
			"details": storageDetails,
		},
		"system": gin.H{
			"status":  systemStatus.Status,
			"details": systemStatus.Details,
			"uptime":  time.Since(startTime).String(),
		},
	}

	// gateway 或存儲不健康時，整體狀態設為 degraded.
	if gatewayStatus == statusUnhealthy || storageStatus == statusUnhealthy {
		response["status"] = "degraded"
	}

	// 即使依賴不健康，也回傳 200 狀態碼，讓監控系統知道服務本身是正常的.
	// 各依賴狀態會在回應中顯示.
	c.JSON(http.StatusOK, response)
}

// SystemStatus 系統狀態.
type SystemStatus struct {
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details"`
}

// checkSystemResources 檢查系統資源.
func (h *Handler) checkSystemResources() SystemStatus {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	details := map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc":       fmt.Sprintf("%.2f MB", float64(m.Alloc)/memoryMB),
			"total_alloc": fmt.Sprintf("%.2f MB", float64(m.TotalAlloc)/memoryMB),
			"sys":         fmt.Sprintf("%.2f MB", float64(m.Sys)/memoryMB),
			"num_gc":      m.NumGC,
		},
		"cpu": gin.H{
			"num_cpu": runtime.NumCPU(),
		},
	}

	// 檢查記憶體使用是否過高（超過 1GB 視為警告）
	memoryUsage := m.Sys / memoryMB // MB
	status := statusHealthy
	if memoryUsage > memoryThreshold {
		status = statusWarning
		details["memory_warning"] = "Memory usage is high"
	}

	return SystemStatus{
		Status:  status,
		Details: details,
	}
}

// checkStorage 檢查憑證存儲文件是否存在且可讀.
func (h *Handler) checkStorage() error {
	if h.storagePath == "" {
		return fmt.Errorf("storage path not configured")
	}

	f, err := os.Open(h.storagePath)
	if err != nil {
		return fmt.Errorf("credential store not available: %w", err)
	}
	return f.Close()
}

// 記錄服務啟動時間.
var startTime = time.Now()
