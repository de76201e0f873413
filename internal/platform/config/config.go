package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config 應用程式配置結構.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Discord DiscordConfig `mapstructure:"discord"`
	API     APIConfig     `mapstructure:"api"`
	Storage StorageConfig `mapstructure:"storage"`
	Bind    BindConfig    `mapstructure:"bind"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

// AppConfig 應用程式基本配置.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Debug   bool   `mapstructure:"debug"`
}

// DiscordConfig Discord 機器人配置.
// Token 不放在配置檔案裡，從環境變數 DISCORD_TOKEN 讀取.
type DiscordConfig struct {
	AppID   string `mapstructure:"app_id"`
	GuildID string `mapstructure:"guild_id"` // 空字串表示註冊全域命令.
}

// APIConfig TaiwanFRP API 配置.
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	MonitorURL     string `mapstructure:"monitor_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // 單次遠端呼叫的超時.
}

// StorageConfig 本地持久化配置.
type StorageConfig struct {
	DataDir         string `mapstructure:"data_dir"`
	KeyFile         string `mapstructure:"key_file"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// BindConfig 帳號綁定流程配置.
type BindConfig struct {
	InputTimeoutSeconds int `mapstructure:"input_timeout_seconds"` // 等待使用者輸入的超時.
	MaxAttempts         int `mapstructure:"max_attempts"`          // 每個輸入步驟的總嘗試次數.
	AuthTimeoutSeconds  int `mapstructure:"auth_timeout_seconds"`  // 驗證帳密的超時.
}

// ServerConfig 管理伺服器配置（健康檢查端點）.
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	Timeout int    `mapstructure:"timeout"` // 讀寫超時 (秒).
}

// LogConfig 日誌配置.
type LogConfig struct {
	RotationTimeHours int `mapstructure:"rotation_time_hours"` // 日誌輪轉時間 (小時).
	MaxAgeDays        int `mapstructure:"max_age_days"`        // 日誌保留天數.
	MaxSizeMB         int `mapstructure:"max_size_mb"`         // 單個日誌檔案最大大小 (MB).
}

// AuditConfig 審計配置.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var (
	config *Config
	// ENV 當前環境變數.
	ENV string = "local"
)

// Load 載入設定檔.
func Load(testCfg ...*Config) error {
	// 如果直接傳入配置（主要用於測試），設定並驗證
	if len(testCfg) > 0 && testCfg[0] != nil {
		config = testCfg[0]
		if err := validateConfig(config); err != nil {
			return fmt.Errorf("配置驗證失敗: %w", err)
		}
		return nil
	}

	// 初始化 Viper
	v := viper.New()

	// 檢查是否有 CONFIG_PATH 環境變數
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		// 使用 CONFIG_PATH 指定的檔案
		v.SetConfigFile(configPath)
		// 從檔案名稱推斷環境
		baseName := filepath.Base(configPath)
		ENV = strings.TrimSuffix(baseName, filepath.Ext(baseName))
	} else {
		// 使用預設的環境配置檔案
		v.SetConfigName(ENV)
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
	}

	// 讀取配置檔案
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("讀取配置檔案失敗: %w", err)
	}

	// 將配置綁定到結構體
	config = &Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("解析配置失敗: %w", err)
	}

	// 驗證配置
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("配置驗證失敗: %w", err)
	}

	return nil
}

// Get 取得設定.
func Get() *Config {
	return config
}

// SetEnv 設定環境.
func SetEnv(env string) {
	ENV = env
}

// GetEnv 取得當前環境.
func GetEnv() string {
	return ENV
}

// validateConfig 驗證配置的有效性
func validateConfig(cfg *Config) error {
	// 驗證應用程式配置
	if cfg.App.Name == "" {
		return fmt.Errorf("應用程式名稱不能為空")
	}
	if cfg.App.Version == "" {
		return fmt.Errorf("應用程式版本不能為空")
	}

	// 驗證 API 配置
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("API base_url 不能為空")
	}
	if cfg.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("API 超時時間必須大於 0")
	}

	// 驗證持久化配置
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("資料目錄不能為空")
	}
	if cfg.Storage.KeyFile == "" {
		return fmt.Errorf("密鑰檔案路徑不能為空")
	}
	if cfg.Storage.CredentialsFile == "" {
		return fmt.Errorf("認證資料檔案路徑不能為空")
	}

	// 驗證綁定流程配置
	if cfg.Bind.InputTimeoutSeconds <= 0 {
		return fmt.Errorf("綁定輸入超時時間必須大於 0")
	}
	if cfg.Bind.MaxAttempts <= 0 {
		return fmt.Errorf("綁定嘗試次數必須大於 0")
	}
	if cfg.Bind.AuthTimeoutSeconds <= 0 {
		return fmt.Errorf("綁定驗證超時時間必須大於 0")
	}

	// 驗證日誌配置
	if cfg.Log.RotationTimeHours <= 0 {
		return fmt.Errorf("日誌輪轉時間必須大於 0")
	}
	if cfg.Log.MaxAgeDays <= 0 {
		return fmt.Errorf("日誌保留天數必須大於 0")
	}
	if cfg.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("日誌檔案最大大小必須大於 0")
	}

	return nil
}

// IsDebug 檢查是否為除錯模式
func IsDebug() bool {
	if config != nil {
		return config.App.Debug
	}
	return false
}

// GetServerAddr 取得管理伺服器地址
func GetServerAddr() string {
	if config != nil {
		return fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)
	}
	return "localhost:8090"
}

// KeyFilePath 取得密鑰檔案完整路徑
func KeyFilePath() string {
	if config == nil {
		return ""
	}
	return filepath.Join(config.Storage.DataDir, config.Storage.KeyFile)
}

// CredentialsFilePath 取得認證資料檔案完整路徑
func CredentialsFilePath() string {
	if config == nil {
		return ""
	}
	return filepath.Join(config.Storage.DataDir, config.Storage.CredentialsFile)
}
