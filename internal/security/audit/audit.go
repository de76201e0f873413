package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// AuditService 帳號操作審計服務
type AuditService struct {
	enabled bool
	logger  *log.Logger
}

// NewAuditService 創建審計服務
func NewAuditService(enabled bool) *AuditService {
	return &AuditService{
		enabled: enabled,
		logger:  log.Default(),
	}
}

// AuditEvent 審計事件
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	UserID    string                 `json:"user_id"`
	Action    string                 `json:"action"`
	Result    string                 `json:"result"` // success, failure
	Details   map[string]interface{} `json:"details,omitempty"`
}

// LogBindAttempt 記錄帳號綁定嘗試
func (a *AuditService) LogBindAttempt(ctx context.Context, userID, username string, success bool, reason string) {
	if !a.enabled {
		return
	}

	result := "success"
	if !success {
		result = "failure"
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "account_bind",
		UserID:    userID,
		Action:    "bind",
		Result:    result,
		Details: map[string]interface{}{
			"username": username,
		},
	}
	if reason != "" {
		event.Details["reason"] = reason
	}

	a.log(event)
}

// LogUnbind 記錄解綁操作
func (a *AuditService) LogUnbind(ctx context.Context, userID string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "account_unbind",
		UserID:    userID,
		Action:    "unbind",
		Result:    "success",
	}

	a.log(event)
}

// LogCommand 記錄命令執行
func (a *AuditService) LogCommand(ctx context.Context, userID, command, args string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "command",
		UserID:    userID,
		Action:    command,
		Result:    "success",
	}
	if args != "" {
		event.Details = map[string]interface{}{"args": args}
	}

	a.log(event)
}

// LogTunnelCheck 記錄隧道檢查
func (a *AuditService) LogTunnelCheck(ctx context.Context, userID, tunnelName, status string) {
	if !a.enabled {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "tunnel_check",
		UserID:    userID,
		Action:    "check_tunnel",
		Result:    "success",
		Details: map[string]interface{}{
			"tunnel": tunnelName,
			"status": status,
		},
	}

	a.log(event)
}

// log 輸出審計事件
func (a *AuditService) log(event AuditEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		a.logger.Printf("[AUDIT] failed to marshal event: %v", err)
		return
	}

	a.logger.Printf("[AUDIT] %s", string(data))
}

// IsEnabled 審計是否啟用
func (a *AuditService) IsEnabled() bool {
	return a.enabled
}
