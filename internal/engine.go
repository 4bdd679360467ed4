package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 系統設計問題：
//   如何在不解讀承載內容的前提下，把信令訊息路由到正確的對端？
//
// 核心挑戰：
//   1. 分發：join / offer / answer / candidate / message / leave 各走各的路徑
//   2. 錯誤隔離：一筆壞訊息或一個離線目標，不能影響其他連線
//   3. 清理冪等：顯式 leave 與傳輸層斷線可能重複觸發同一份清理
//   4. 廣播一致性：收件人枚舉必須相對於成員變更是原子的
//
// 設計方案：
//   ✅ type 鑑別分發 - 未知類型靜默忽略（向前相容）
//   ✅ 領域錯誤就地轉換 - error 回覆或靜默 no-op，絕不向上傳播
//   ✅ Room.Leave 的 no-op 語義 - 清理路徑天然冪等
//   ✅ 鎖內快照廣播 - Join/Leave 回傳的快照就是收件人名單

// ErrInvalidCredential 共享憑證不符
var ErrInvalidCredential = errors.New("無效的憑證")

// Session 單一傳輸連線的信令狀態
//
// 傳輸層為每條連線持有一份，引擎在 join 成功後填入身份，
// 斷線清理時讀取。同一條連線上的訊息是序列處理的，
// 所以這裡不需要鎖。
type Session struct {
	Channel Channel
	UserID  string
	RoomID  string
}

// Engine 信令引擎
//
// 房間目錄與連線註冊表由引擎持有並注入到各處理路徑，
// 不依賴全域狀態，方便測試時替換。
type Engine struct {
	directory  *Directory
	registry   *Registry
	credential string
	logger     *slog.Logger
}

// NewEngine 創建信令引擎
func NewEngine(directory *Directory, registry *Registry, credential string, logger *slog.Logger) *Engine {
	return &Engine{
		directory:  directory,
		registry:   registry,
		credential: credential,
		logger:     logger,
	}
}

// HandleMessage 處理一筆入站訊息
//
// 壞訊息記錄後丟棄，分發繼續服務同一條連線的後續訊息；
// 任何路徑都不會讓錯誤傳播出去。
func (e *Engine) HandleMessage(sess *Session, raw []byte) {
	var msg envelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		metricMessages.WithLabelValues("malformed").Inc()
		e.logger.Error("解析訊息失敗", "error", err)
		return
	}

	switch msg.Type {
	case "join":
		metricMessages.WithLabelValues("join").Inc()
		e.handleJoin(sess, &msg)
	case "offer", "answer", "candidate":
		metricMessages.WithLabelValues(msg.Type).Inc()
		e.forwardToPeer(raw, &msg)
	case "message":
		metricMessages.WithLabelValues("message").Inc()
		e.forwardChat(&msg)
	case "leave":
		metricMessages.WithLabelValues("leave").Inc()
		e.disconnect(msg.UserID, msg.RoomID)
		if msg.UserID == sess.UserID {
			sess.UserID = ""
			sess.RoomID = ""
		}
	default:
		// 未知類型靜默忽略（向前相容）
		metricMessages.WithLabelValues("unknown").Inc()
		e.logger.Debug("收到未知訊息類型", "type", msg.Type)
	}
}

// handleJoin 處理加入請求
func (e *Engine) handleJoin(sess *Session, msg *envelope) {
	// 憑證檢查：失敗只回覆 error，連線保持開啟，成員不變
	if msg.Credential != e.credential {
		metricJoinRejections.WithLabelValues("invalid_credential").Inc()
		e.logger.Warn("憑證驗證失敗", "room_id", msg.RoomID)
		sess.Channel.Send(errorEnvelope(ErrInvalidCredential.Error()))
		return
	}

	// 同一條連線重複 join：先清掉舊身份，
	// 維持「一個使用者同時只屬於一個房間」
	if sess.UserID != "" {
		e.disconnect(sess.UserID, sess.RoomID)
		sess.UserID = ""
		sess.RoomID = ""
	}

	// 先註冊通道再入房：身份一旦出現在任何成員快照裡，
	// 並行的廣播就必須能投遞到它
	userID := newUserID()
	e.registry.Register(userID, sess.Channel)

	room, members, err := e.directory.Join(msg.RoomID, msg.Capacity, &User{ID: userID, JoinedAt: time.Now()})
	if err != nil {
		e.registry.Unregister(userID)
		metricJoinRejections.WithLabelValues("room_full").Inc()
		e.logger.Warn("加入被拒絕",
			"room_id", msg.RoomID,
			"reason", err.Error())
		sess.Channel.Send(errorEnvelope(err.Error()))
		return
	}

	sess.UserID = userID
	sess.RoomID = msg.RoomID

	// 先回覆加入者，再通知既有成員
	sess.Channel.Send(joinedEnvelope(userID, members, msg.RoomID, room.MaxUsers))
	e.broadcast(members, userJoinedEnvelope(userID, members), userID)

	e.logger.Info("使用者加入房間",
		"room_id", msg.RoomID,
		"user_id", userID,
		"occupancy", len(members),
		"max_users", room.MaxUsers)
}

// forwardToPeer 原樣轉發信令承載（offer/answer/candidate）
//
// 引擎不解讀承載，只移除路由欄位後丟給目標。
// 目標不在線上時靜默丟棄：對端可能已經合法離線。
func (e *Engine) forwardToPeer(raw []byte, msg *envelope) {
	payload, err := stripTarget(raw)
	if err != nil {
		e.logger.Error("重組轉發訊息失敗", "error", err)
		return
	}

	if !e.registry.Send(msg.TargetUserID, payload) {
		e.logger.Debug("信令轉發目標不可達",
			"type", msg.Type,
			"target_user_id", msg.TargetUserID)
	}
}

// forwardChat 轉發文字訊息
func (e *Engine) forwardChat(msg *envelope) {
	if !e.registry.Send(msg.TargetUserID, chatEnvelope(msg.Text, msg.SenderID)) {
		e.logger.Debug("文字訊息目標不可達", "target_user_id", msg.TargetUserID)
	}
}

// Disconnect 傳輸層回報連線關閉時的清理入口
//
// 與顯式 leave 共用同一份清理，重複觸發最多一次廣播：
// Room.Leave 第二次是 no-op，不會再廣播。
func (e *Engine) Disconnect(sess *Session) {
	e.disconnect(sess.UserID, sess.RoomID)
	sess.UserID = ""
	sess.RoomID = ""
}

// disconnect 斷線清理
func (e *Engine) disconnect(userID, roomID string) {
	if userID == "" {
		return
	}

	if room, exists := e.directory.Get(roomID); exists {
		if members, removed := room.Leave(userID); removed {
			e.broadcast(members, userLeftEnvelope(userID, members), userID)
			e.logger.Info("使用者離開房間",
				"room_id", roomID,
				"user_id", userID,
				"occupancy", len(members))

			if len(members) == 0 {
				e.directory.ScheduleDelete(roomID)
			}
		}
	}

	e.registry.Unregister(userID)
}

// broadcast 廣播給一組成員
//
// 收件人名單來自觸發變更時在鎖內取得的快照，
// 枚舉因此相對於該次變更是原子的。逐一投遞、各自盡力：
// 一個不可達的成員不影響其他人收到。
func (e *Engine) broadcast(users []string, message []byte, excludeUserID string) {
	for _, userID := range users {
		if userID == excludeUserID {
			continue
		}
		e.registry.Send(userID, message)
	}
}

// Stats 取得引擎統計資訊
func (e *Engine) Stats() map[string]any {
	stats := e.directory.Stats()
	stats["total_connections"] = e.registry.Count()
	return stats
}

// newUserID 產生伺服器端使用者身份
func newUserID() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
