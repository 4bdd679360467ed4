package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig HTTP 服務配置
type ServerConfig struct {
	Port         int `yaml:"port"`
	ReadTimeout  int `yaml:"read_timeout_seconds"`
	WriteTimeout int `yaml:"write_timeout_seconds"`
	IdleTimeout  int `yaml:"idle_timeout_seconds"`
}

// AuthConfig 共享憑證配置
type AuthConfig struct {
	Credential string `yaml:"credential"`
}

// RoomConfig 房間回收配置（秒）
type RoomConfig struct {
	GracePeriodSeconds   int `yaml:"grace_period_seconds"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	StaleAfterSeconds    int `yaml:"stale_after_seconds"`
}

// CORSConfig 跨來源配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig 日誌配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config 服務配置
//
// 來源優先序：預設值 < YAML 配置檔 < 環境變數。
// 環境變數：PORT、SIGNAL_CREDENTIAL（憑證是機密，建議走環境變數
// 或 .env，不要寫進配置檔）。
type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Room   RoomConfig   `yaml:"room"`
	CORS   CORSConfig   `yaml:"cors"`
	Log    LogConfig    `yaml:"log"`
}

// DefaultConfig 預設配置
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15,
			WriteTimeout: 15,
			IdleTimeout:  60,
		},
		Auth: AuthConfig{
			Credential: "secret123",
		},
		Room: RoomConfig{
			GracePeriodSeconds:   60,
			SweepIntervalSeconds: 300,
			StaleAfterSeconds:    3600,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig 載入配置
//
// path 為空時只用預設值加環境變數覆蓋。
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("解析配置檔失敗: %w", err)
		}
	}

	// 環境變數覆蓋
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SIGNAL_CREDENTIAL"); v != "" {
		cfg.Auth.Credential = v
	}

	return cfg, nil
}

// DirectoryConfig 轉換為房間目錄的回收參數
func (c Config) DirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		GracePeriod:   time.Duration(c.Room.GracePeriodSeconds) * time.Second,
		SweepInterval: time.Duration(c.Room.SweepIntervalSeconds) * time.Second,
		StaleAfter:    time.Duration(c.Room.StaleAfterSeconds) * time.Second,
	}
}
