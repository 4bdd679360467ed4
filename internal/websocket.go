package internal

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何在傳輸層與信令核心之間劃出乾淨的邊界？
//
// 核心挑戰：
//   1. 連線生命週期屬於傳輸層：核心只借用出站通道，永遠不關閉連線
//   2. 心跳檢測：偵測死連線（網路異常、客戶端崩潰），觸發核心的斷線清理
//   3. 寫入串行化：gorilla/websocket 要求同一時間只有一個 writer
//   4. 慢消費者隔離：一個寫不動的客戶端不能拖住房間裡其他人
//
// 設計方案：
//   ✅ readPump / writePump 各一個 goroutine - 讀寫各自獨佔
//   ✅ Ping/Pong 心跳（54s/60s）- 協議原生控制幀，不佔應用層帶寬
//   ✅ 緩衝 channel + 非阻塞發送 - 緩衝滿就丟，優先保證其他連線
//   ✅ Conn 實作 Channel 介面 - 核心只看得到非擁有的出站視圖

const (
	// 寫入一筆訊息的時限
	writeWait = 10 * time.Second

	// 等待下一個 Pong 的時限
	pongWait = 60 * time.Second

	// Ping 間隔，必須小於 pongWait
	pingPeriod = 54 * time.Second

	// 入站訊息大小上限（SDP 承載足夠）
	maxMessageSize = 64 * 1024

	// 出站緩衝深度
	sendBufferSize = 256
)

// Hub WebSocket 傳輸層
//
// 每條連線升級後掛上一個 Session，交給引擎處理訊息；
// 連線關閉時觸發引擎的斷線清理。
type Hub struct {
	engine   *Engine
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewHub 創建 WebSocket 傳輸層
func NewHub(engine *Engine, logger *slog.Logger) *Hub {
	return &Hub{
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// 來源白名單交給外層的 CORS 配置
				return true
			},
		},
		conns: make(map[*Conn]struct{}),
	}
}

// Conn 單一 WebSocket 連線
//
// 同時是核心眼中的 Channel：Send 走緩衝 channel 非阻塞投遞，
// IsOpen 回報連線是否仍在服務。
type Conn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
	sess Session

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// ServeWS 處理 WebSocket 升級請求
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	conn := &Conn{
		hub:  hub,
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	conn.sess.Channel = conn

	hub.add(conn)

	go conn.writePump()
	go conn.readPump()

	hub.logger.Info("WebSocket 連線建立", "remote_addr", ws.RemoteAddr().String())
}

// add 登記連線
func (hub *Hub) add(conn *Conn) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.conns[conn] = struct{}{}
}

// remove 移除連線
func (hub *Hub) remove(conn *Conn) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	delete(hub.conns, conn)
}

// Stop 關閉所有連線
func (hub *Hub) Stop() {
	hub.mu.Lock()
	conns := make([]*Conn, 0, len(hub.conns))
	for conn := range hub.conns {
		conns = append(conns, conn)
	}
	hub.conns = make(map[*Conn]struct{})
	hub.mu.Unlock()

	for _, conn := range conns {
		conn.shutdown()
		conn.ws.Close()
	}

	hub.logger.Info("WebSocket 傳輸層已停止")
}

// Send 非阻塞投遞一筆出站訊息
//
// 連線關閉中或緩衝已滿時回傳 false；
// 慢消費者只會丟自己的訊息，不會阻塞投遞方。
func (c *Conn) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		c.hub.logger.Warn("連線緩衝區滿，訊息丟棄",
			"remote_addr", c.ws.RemoteAddr().String())
		return false
	}
}

// IsOpen 回報連線是否仍在服務
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// shutdown 標記連線關閉（只會生效一次）
func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// readPump 讀取客戶端訊息並交給引擎
//
// 心跳（讀取端）：60 秒內沒有任何訊息（包括 Pong）就視為死連線。
// 讀取結束即代表傳輸層回報關閉，觸發核心的斷線清理。
func (c *Conn) readPump() {
	defer func() {
		c.hub.engine.Disconnect(&c.sess)
		c.hub.remove(c)
		c.shutdown()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"user_id", c.sess.UserID)
			}
			break
		}

		if messageType == websocket.TextMessage {
			c.hub.engine.HandleMessage(&c.sess, message)
		}
	}
}

// writePump 把出站訊息寫到客戶端
//
// 心跳（發送端）：54 秒 Ping 一次，避開常見的 60 秒代理超時，
// 留 6 秒余量給網路延遲。
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量送出隊列中剩下的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			deadline := time.Now().Add(time.Second)
			if err := c.ws.SetWriteDeadline(deadline); err == nil {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return
		}
	}
}
