package internal

import "encoding/json"

// envelope 入站信令訊息
//
// 線路契約：所有訊息都是帶 type 鑑別欄位的 JSON 物件。
// offer/answer/candidate 的承載欄位是任意的，引擎不解讀，
// 這裡只解出路由需要的欄位。
type envelope struct {
	Type         string `json:"type"`
	RoomID       string `json:"roomId"`
	Credential   string `json:"credential"`
	Capacity     int    `json:"capacity"`
	TargetUserID string `json:"targetUserId"`
	Text         string `json:"text"`
	SenderID     string `json:"senderId"`
	UserID       string `json:"userId"`
}

// 出站訊息一律從 map 序列化，欄位名即線路契約。
// 這些 map 只含可序列化型別，Marshal 不會失敗。

func errorEnvelope(message string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":    "error",
		"message": message,
	})
	return data
}

func joinedEnvelope(userID string, users []string, roomID string, maxUsers int) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":     "joined",
		"userId":   userID,
		"users":    users,
		"roomId":   roomID,
		"maxUsers": maxUsers,
	})
	return data
}

func userJoinedEnvelope(userID string, users []string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":   "user_joined",
		"userId": userID,
		"users":  users,
	})
	return data
}

func userLeftEnvelope(userID string, users []string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":   "user_left",
		"userId": userID,
		"users":  users,
	})
	return data
}

func chatEnvelope(text, senderID string) []byte {
	data, _ := json.Marshal(map[string]any{
		"type":     "message",
		"text":     text,
		"senderId": senderID,
	})
	return data
}

// stripTarget 原樣轉發前移除路由欄位
//
// offer/answer/candidate 對引擎是不透明承載，
// 只拿掉 targetUserId，其餘欄位一個不動。
func stripTarget(raw []byte) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "targetUserId")
	return json.Marshal(fields)
}
