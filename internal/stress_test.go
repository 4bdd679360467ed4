package internal_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-signaling-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStress_ConcurrentJoins 測試併發加入不會突破容量
//
// 50 條連線同時搶一個容量 6 的房間：
// 不論交錯順序如何，成功的剛好 6 個，其餘收到 error。
func TestStress_ConcurrentJoins(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	engine, directory, _ := newTestEngine(t, quietDirectoryConfig())

	const numClients = 50

	var (
		wg            sync.WaitGroup
		joinedCount   int32
		rejectedCount int32
	)

	raw := fmt.Sprintf(`{"type":"join","roomId":"crowded","credential":%q,"capacity":6}`, testCredential)

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ch := newFakeChannel()
			sess := &internal.Session{Channel: ch}
			engine.HandleMessage(sess, []byte(raw))

			switch ch.lastType() {
			case "joined":
				atomic.AddInt32(&joinedCount, 1)
			case "error":
				atomic.AddInt32(&rejectedCount, 1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(6), joinedCount)
	assert.Equal(t, int32(numClients-6), rejectedCount)

	room, exists := directory.Get("crowded")
	require.True(t, exists)
	assert.Equal(t, 6, room.UserCount())
	assert.LessOrEqual(t, room.UserCount(), room.MaxUsers)
}

// TestStress_JoinBroadcastDelivery 測試併發加入時的成員廣播送達
//
// 身份在出現於任何成員快照之前就已註冊通道，
// 所以並行加入者互相廣播的 user_joined 一筆都不會落空。
func TestStress_JoinBroadcastDelivery(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	engine, _, _ := newTestEngine(t, quietDirectoryConfig())

	const (
		numRounds  = 25
		numClients = 6
	)

	for round := 0; round < numRounds; round++ {
		raw := fmt.Sprintf(`{"type":"join","roomId":"burst_%d","credential":%q,"capacity":6}`,
			round, testCredential)

		channels := make([]*fakeChannel, numClients)
		var wg sync.WaitGroup
		for i := 0; i < numClients; i++ {
			channels[i] = newFakeChannel()
			wg.Add(1)
			go func(ch *fakeChannel) {
				defer wg.Done()
				sess := &internal.Session{Channel: ch}
				engine.HandleMessage(sess, []byte(raw))
			}(channels[i])
		}
		wg.Wait()

		// 第 k 個入房的人會收到其後 (n-k) 次 user_joined，
		// 加總固定是 n*(n-1)/2：漏掉任何一筆投遞總數就會變少
		totalJoined, totalUserJoined := 0, 0
		for _, ch := range channels {
			totalJoined += ch.countType("joined")
			totalUserJoined += ch.countType("user_joined")
		}
		require.Equal(t, numClients, totalJoined)
		require.Equal(t, numClients*(numClients-1)/2, totalUserJoined)
	}
}

// TestStress_JoinLeaveChurn 測試併發加入離開的攪動
func TestStress_JoinLeaveChurn(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	cfg := quietDirectoryConfig()
	cfg.GracePeriod = 10 * time.Millisecond
	engine, directory, _ := newTestEngine(t, cfg)

	const (
		numWorkers    = 20
		numOperations = 50
	)

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			roomID := fmt.Sprintf("room_%d", workerID%4)
			raw := fmt.Sprintf(`{"type":"join","roomId":%q,"credential":%q}`, roomID, testCredential)

			for j := 0; j < numOperations; j++ {
				ch := newFakeChannel()
				sess := &internal.Session{Channel: ch}
				engine.HandleMessage(sess, []byte(raw))

				if sess.UserID != "" {
					// 一半顯式 leave，一半傳輸層斷線
					if j%2 == 0 {
						leave := fmt.Sprintf(`{"type":"leave","roomId":%q,"userId":%q}`, roomID, sess.UserID)
						engine.HandleMessage(sess, []byte(leave))
					} else {
						engine.Disconnect(sess)
					}
				}
			}
		}(i)
	}

	wg.Wait()
	t.Logf("攪動測試耗時: %v", time.Since(start))

	// 攪動過程中容量不變式持續成立，結束後所有房間都是空的
	for _, summary := range directory.ListRooms() {
		assert.Equal(t, 0, summary["user_count"])
	}

	stats := engine.Stats()
	assert.Equal(t, 0, stats["total_users"])
	assert.Equal(t, 0, stats["total_connections"])
}

// TestStress_ConcurrentForwarding 測試併發轉發與成員變更共存
func TestStress_ConcurrentForwarding(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	engine, _, _ := newTestEngine(t, quietDirectoryConfig())

	chA := newFakeChannel()
	sessA := &internal.Session{Channel: chA}
	joinRoom(t, engine, sessA, "r1", 0)

	chB := newFakeChannel()
	sessB := &internal.Session{Channel: chB}
	userB := joinRoom(t, engine, sessB, "r1", 0)

	const numMessages = 200

	var wg sync.WaitGroup

	// 一邊持續轉發
	wg.Add(1)
	go func() {
		defer wg.Done()
		raw := fmt.Sprintf(`{"type":"candidate","targetUserId":%q,"candidate":"c"}`, userB)
		for i := 0; i < numMessages; i++ {
			engine.HandleMessage(sessA, []byte(raw))
		}
	}()

	// 一邊有人進進出出
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			ch := newFakeChannel()
			sess := &internal.Session{Channel: ch}
			engine.HandleMessage(sess, []byte(fmt.Sprintf(`{"type":"join","roomId":"r1","credential":%q}`, testCredential)))
			engine.Disconnect(sess)
		}
	}()

	wg.Wait()

	// B 還在線上，轉發全數送達
	received := 0
	for _, msg := range chB.received(t) {
		if msg["type"] == "candidate" {
			received++
		}
	}
	assert.Equal(t, numMessages, received)
}
