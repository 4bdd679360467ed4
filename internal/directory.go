package internal

import (
	"log/slog"
	"sync"
	"time"
)

// DirectoryConfig 房間目錄的回收參數
//
// 生產環境使用 DefaultDirectoryConfig 的值；
// 測試可以注入極短的時間來驗證回收行為。
type DirectoryConfig struct {
	// GracePeriod 房間變空後到刪除檢查之間的寬限期
	GracePeriod time.Duration

	// SweepInterval Reaper 定期掃描的間隔
	SweepInterval time.Duration

	// StaleAfter 空房間創建多久後視為陳舊（Reaper 判定）
	StaleAfter time.Duration
}

// DefaultDirectoryConfig 預設回收參數
func DefaultDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		GracePeriod:   60 * time.Second,
		SweepInterval: 300 * time.Second,
		StaleAfter:    3600 * time.Second,
	}
}

// Directory 房間目錄
//
// 系統設計考量：
//
//  1. 惰性創建：
//     房間在第一次 join 時才建立，創建永遠成功（無錯誤路徑），
//     容量在這裡鉗制到 1..6。
//
//  2. 延遲刪除是「排程一次重新檢查」而非「排程一次刪除」：
//     房間變空後 60 秒才檢查，檢查時重新驗證房間仍然是空的。
//     寬限期內有人重新加入，房間就不會被刪（計時器不需要取消，
//     因為它本來就只是一次重新檢查）。
//
//  3. Join 與刪除檢查在目錄鎖內串行化：
//     取房、入房是同一個臨界區，刪除檢查看到的成員數
//     必然反映已完成的加入，不會刪掉剛有人進來的房間，
//     也不會讓加入落在一個已被移出目錄的房間實例上。
//
//  4. Reaper 雙重保險：
//     定期掃描刪除「空且超齡」的房間，獨立於逐房計時器，
//     防止計時器因任何原因遺失造成洩漏。
type Directory struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	cfg    DirectoryConfig
	logger *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewDirectory 創建房間目錄並啟動 Reaper
func NewDirectory(cfg DirectoryConfig, logger *slog.Logger) *Directory {
	d := &Directory{
		rooms:  make(map[string]*Room),
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.reapLoop()

	return d
}

// GetOrCreate 取得房間，不存在則創建
//
// 容量鉗制規則：requested <= 0 或未指定 → 6；requested > 6 → 6；
// 其餘照用。既有房間的容量不受後續請求影響。
func (d *Directory) GetOrCreate(roomID string, requestedCapacity int) *Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getOrCreateLocked(roomID, requestedCapacity)
}

// getOrCreateLocked 呼叫端必須持有 d.mu
func (d *Directory) getOrCreateLocked(roomID string, requestedCapacity int) *Room {
	if room, exists := d.rooms[roomID]; exists {
		return room
	}

	room := NewRoom(roomID, clampCapacity(requestedCapacity))
	d.rooms[roomID] = room
	metricActiveRooms.Inc()

	d.logger.Info("房間已創建",
		"room_id", roomID,
		"max_users", room.MaxUsers)

	return room
}

// Join 取得（或創建）房間並加入使用者
//
// 取房與入房在目錄鎖內一氣呵成：與 DeleteIfEmpty 串行化之後，
// 成功加入的房間保證仍掛在目錄上，不會出現「加入了一個
// 剛被寬限期計時器移除的房間實例」的走失成員。
func (d *Directory) Join(roomID string, requestedCapacity int, user *User) (*Room, []string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room := d.getOrCreateLocked(roomID, requestedCapacity)
	members, err := room.Join(user)
	if err != nil {
		return room, nil, err
	}
	return room, members, nil
}

// Get 取得房間
func (d *Directory) Get(roomID string) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, exists := d.rooms[roomID]
	return room, exists
}

// DeleteIfEmpty 只在房間目前為空時刪除
//
// 刪除時重新檢查：排程刪除與後續 join 實際上在賽跑，
// 寬限期內重新有人的房間必須存活。
func (d *Directory) DeleteIfEmpty(roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	room, exists := d.rooms[roomID]
	if !exists || room.UserCount() > 0 {
		return false
	}

	delete(d.rooms, roomID)
	metricActiveRooms.Dec()

	d.logger.Info("空房間已刪除", "room_id", roomID)
	return true
}

// ScheduleDelete 房間變空時排程寬限期後的刪除檢查
//
// 計時器不被追蹤也不取消：DeleteIfEmpty 自己會重新檢查空房，
// 目錄停止後也會拒絕刪除，晚到的計時器一律是 no-op。
func (d *Directory) ScheduleDelete(roomID string) {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return
	}

	time.AfterFunc(d.cfg.GracePeriod, func() {
		d.DeleteIfEmpty(roomID)
	})
}

// Sweep 執行一次 Reaper 掃描（公開方法供測試使用）
func (d *Directory) Sweep() {
	d.mu.RLock()
	var toRemove []string
	for roomID, room := range d.rooms {
		if room.IsStale(d.cfg.StaleAfter) {
			toRemove = append(toRemove, roomID)
		}
	}
	d.mu.RUnlock()

	for _, roomID := range toRemove {
		if d.DeleteIfEmpty(roomID) {
			d.logger.Info("陳舊房間已回收", "room_id", roomID)
		}
	}
}

// reapLoop Reaper 背景掃描
func (d *Directory) reapLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Sweep()
		case <-d.stopCh:
			return
		}
	}
}

// RoomCount 取得房間數量
func (d *Directory) RoomCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// ListRooms 列出所有房間的摘要
func (d *Directory) ListRooms() []map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]map[string]any, 0, len(d.rooms))
	for _, room := range d.rooms {
		result = append(result, map[string]any{
			"room_id":    room.ID,
			"users":      room.Members(),
			"user_count": room.UserCount(),
			"max_users":  room.MaxUsers,
			"created_at": room.CreatedAt,
		})
	}
	return result
}

// Stats 取得統計資訊
func (d *Directory) Stats() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	totalUsers := 0
	for _, room := range d.rooms {
		totalUsers += room.UserCount()
	}

	return map[string]any{
		"total_rooms": len(d.rooms),
		"total_users": totalUsers,
	}
}

// Stop 停止 Reaper 並讓目錄進入靜默：
// 之後到期的寬限期計時器不再刪房、不再寫日誌。
func (d *Directory) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
	d.logger.Info("房間目錄已停止")
}

// clampCapacity 把請求的容量鉗制到合法範圍
func clampCapacity(requested int) int {
	if requested <= 0 {
		return DefaultRoomCapacity
	}
	if requested > MaxRoomCapacity {
		return MaxRoomCapacity
	}
	return requested
}
