package internal

import (
	"errors"
	"sync"
	"time"
)

// 系統設計問題：
//   如何為 WebRTC 點對點連線提供會合中繼（Rendezvous Relay）？
//
// 核心挑戰：
//   1. 成員管理：使用者加入具名房間、互相發現、交換信令
//   2. 容量限制：每個房間最多 6 人，超出必須拒絕而非驅逐
//   3. 順序保證：成員列表依加入時間排序（客戶端顯示用）
//   4. 資源回收：空房間需要延遲刪除（允許快速重連）
//
// 設計方案：
//   ✅ 有序成員列表 - slice 保留加入順序
//   ✅ RWMutex - 讀多寫少優化（廣播前的成員枚舉是讀操作）
//   ✅ 加入時快照 - 枚舉與變更在同一把鎖下完成
//   ✅ 延遲刪除 + 定期掃描 - 雙重保險的資源回收

const (
	// MaxRoomCapacity 單一房間的容量上限
	MaxRoomCapacity = 6

	// DefaultRoomCapacity 未指定或非法容量時的預設值
	DefaultRoomCapacity = 6
)

// ErrRoomFull 房間已達容量上限
var ErrRoomFull = errors.New("房間已滿")

// User 房間內的使用者
//
// 連線通道由傳輸層持有，這裡只記錄身份與加入時間。
type User struct {
	ID       string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Room 信令房間
//
// 系統設計考量：
//
//  1. 有序列表而非 map：
//     成員順序對正確性無關，但對客戶端顯示有意義，
//     因此用 slice 保留加入順序，查找線性掃描（房間最多 6 人，成本可忽略）。
//
//  2. 容量不變式：
//     len(users) <= MaxUsers 在每次加入後都成立，
//     由 Join 的寫鎖檢查保證，違反時拒絕而非驅逐現有成員。
//
//  3. 快照語義：
//     Join/Leave 在鎖內回傳變更後的成員快照，
//     呼叫端用快照廣播，確保枚舉相對於變更是原子的。
type Room struct {
	ID        string
	MaxUsers  int
	CreatedAt time.Time

	mu    sync.RWMutex
	users []*User // 依加入時間排序
}

// NewRoom 創建房間（容量由 Directory 事先鉗制）
func NewRoom(id string, maxUsers int) *Room {
	return &Room{
		ID:        id,
		MaxUsers:  maxUsers,
		CreatedAt: time.Now(),
	}
}

// Join 加入使用者
//
// 成功時回傳加入後的成員快照；房間已滿時回傳 ErrRoomFull，
// 不改變任何狀態。
func (r *Room) Join(user *User) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 容量檢查（拒絕而非驅逐）
	if len(r.users) >= r.MaxUsers {
		return nil, ErrRoomFull
	}

	r.users = append(r.users, user)
	return r.memberSnapshot(), nil
}

// Leave 移除使用者
//
// 回傳移除後的成員快照與是否真的移除了。身份不在房間內時
// 是靜默 no-op（重複或遲到的 leave 必須被容忍）。
func (r *Room) Leave(userID string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, u := range r.users {
		if u.ID == userID {
			r.users = append(r.users[:i], r.users[i+1:]...)
			return r.memberSnapshot(), true
		}
	}
	return r.memberSnapshot(), false
}

// Members 取得成員身份列表（加入順序）
func (r *Room) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.memberSnapshot()
}

// UserCount 取得成員數量
func (r *Room) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// IsStale 檢查房間是否為可回收的陳舊空房
//
// 條件：目前無人，且創建時間早於 staleAfter。
// 這是 Reaper 的判定依據，與逐房的延遲刪除互為獨立保險。
func (r *Room) IsStale(staleAfter time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users) == 0 && time.Since(r.CreatedAt) > staleAfter
}

// memberSnapshot 產生成員快照（呼叫端需持有鎖）
func (r *Room) memberSnapshot() []string {
	ids := make([]string, 0, len(r.users))
	for _, u := range r.users {
		ids = append(ids, u.ID)
	}
	return ids
}
