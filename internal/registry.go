package internal

import (
	"log/slog"
	"sync"
)

// Channel 傳輸層連線的出站通道
//
// 這是非擁有的視圖：註冊表只透過它投遞訊息，
// 永遠不關閉底層連線（連線的生命週期屬於傳輸層）。
type Channel interface {
	// Send 嘗試投遞一筆訊息，回傳是否被接受
	Send(message []byte) bool

	// IsOpen 回報通道是否仍然可用
	IsOpen() bool
}

// Registry 使用者連線註冊表
//
// 不變式：每個身份同時最多一筆映射。相同身份的後續註冊
// 靜默覆蓋舊通道（身份由伺服器產生，正常情況不會發生，
// 這是刻意接受的寬鬆而非排他鎖保證）。
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	logger   *slog.Logger
}

// NewRegistry 創建連線註冊表
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		channels: make(map[string]Channel),
		logger:   logger,
	}
}

// Register 註冊映射（無條件 upsert）
func (reg *Registry) Register(userID string, ch Channel) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.channels[userID]; !exists {
		metricActiveConnections.Inc()
	}
	reg.channels[userID] = ch
}

// Unregister 移除映射，不存在時是 no-op
func (reg *Registry) Unregister(userID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.channels[userID]; exists {
		delete(reg.channels, userID)
		metricActiveConnections.Dec()
	}
}

// Send 查找通道並嘗試投遞
//
// 目標不存在或通道已關閉時回傳 false，不是錯誤：
// 對方可能已經合法離線，這是預期中的競態。
func (reg *Registry) Send(userID string, message []byte) bool {
	reg.mu.RLock()
	ch, exists := reg.channels[userID]
	reg.mu.RUnlock()

	if !exists || !ch.IsOpen() {
		reg.logger.Debug("目標不在線上", "user_id", userID)
		return false
	}
	return ch.Send(message)
}

// Count 取得目前註冊的連線數
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.channels)
}
