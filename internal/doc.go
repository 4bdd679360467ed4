// Package internal 實現了一個 WebRTC 信令中繼（Rendezvous Relay）。
//
// 客戶端加入具名房間、發現彼此的身份，並透過中繼交換不透明的
// 信令承載（offer/answer/candidate）與文字訊息，直到點對點通道
// 建立為止。中繼只做路由與成員管理，永遠不解讀承載內容。
//
// # 房間生命週期
//
// 提供完整的房間生命週期管理：
//   - 第一次加入時惰性創建（容量鉗制到 1..6，預設 6）
//   - 容量滿時拒絕加入而非驅逐
//   - 變空後 60 秒寬限期刪除（刪除前重新驗證仍為空）
//   - Reaper 每 300 秒掃描，回收空置且創建超過 3600 秒的房間
//
// # 訊息路由
//
// 依 type 鑑別欄位分發：
//   - join：驗證共享憑證、分配身份、回覆 joined、廣播 user_joined
//   - offer / answer / candidate：移除 targetUserId 後原樣轉發
//   - message：合成 {type, text, senderId} 後單播
//   - leave：與傳輸層斷線共用同一份冪等清理，廣播 user_left
//   - 未知類型：靜默忽略（向前相容）
//
// # 錯誤隔離
//
// 所有領域錯誤在偵測點就地轉換成 error 回覆或靜默 no-op：
//   - 憑證不符、房間已滿 → 單筆 error 回覆，連線保持開啟
//   - 壞訊息 → 記錄後丟棄，繼續服務同一條連線
//   - 目標不可達 → 靜默丟棄（對端可能已合法離線）
//
// 沒有任何錯誤會終止連線或讓行程崩潰：信令中繼必須為
// 其餘仍在線的對端持續服務。
//
// # 併發模型
//
// 房間與註冊表的變更都是同步的記憶體操作，由各自的鎖串行化；
// 掛起點只存在於傳輸邊界（等待入站訊息、等待通道投遞）。
// Join/Leave 在鎖內回傳成員快照，廣播枚舉因此相對於變更是
// 原子的。
//
// # 架構分層
//
//   - Engine 層：訊息分發與路由決策
//   - Directory / Room 層：房間生命週期與成員不變式
//   - Registry 層：身份到出站通道的映射
//   - Hub 層：WebSocket 傳輸（讀寫泵、心跳、斷線回報）
//
// 每層透過建構子注入組合，不依賴全域狀態，便於測試替換。
package internal
