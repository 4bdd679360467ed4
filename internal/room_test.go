package internal_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-signaling-relay/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewRoom 測試創建新房間
func TestNewRoom(t *testing.T) {
	room := internal.NewRoom("r1", 4)

	require.NotNil(t, room)
	assert.Equal(t, "r1", room.ID)
	assert.Equal(t, 4, room.MaxUsers)
	assert.Equal(t, 0, room.UserCount())
	assert.Empty(t, room.Members())
	assert.WithinDuration(t, time.Now(), room.CreatedAt, time.Second)
}

// TestRoom_Join 測試加入使用者
func TestRoom_Join(t *testing.T) {
	tests := []struct {
		name      string
		setupRoom func() *internal.Room
		userID    string
		validate  func(t *testing.T, room *internal.Room, members []string, err error)
	}{
		{
			name: "first user joins empty room",
			setupRoom: func() *internal.Room {
				return internal.NewRoom("r1", 4)
			},
			userID: "user_a",
			validate: func(t *testing.T, room *internal.Room, members []string, err error) {
				require.NoError(t, err)
				assert.Equal(t, []string{"user_a"}, members)
				assert.Equal(t, 1, room.UserCount())
			},
		},
		{
			name: "snapshot preserves join order",
			setupRoom: func() *internal.Room {
				room := internal.NewRoom("r2", 4)
				room.Join(&internal.User{ID: "user_a", JoinedAt: time.Now()})
				room.Join(&internal.User{ID: "user_b", JoinedAt: time.Now()})
				return room
			},
			userID: "user_c",
			validate: func(t *testing.T, room *internal.Room, members []string, err error) {
				require.NoError(t, err)
				assert.Equal(t, []string{"user_a", "user_b", "user_c"}, members)
			},
		},
		{
			name: "full room rejects join",
			setupRoom: func() *internal.Room {
				room := internal.NewRoom("r3", 2)
				room.Join(&internal.User{ID: "user_a", JoinedAt: time.Now()})
				room.Join(&internal.User{ID: "user_b", JoinedAt: time.Now()})
				return room
			},
			userID: "user_c",
			validate: func(t *testing.T, room *internal.Room, members []string, err error) {
				require.ErrorIs(t, err, internal.ErrRoomFull)
				assert.Nil(t, members)
				// 拒絕而非驅逐：既有成員不受影響
				assert.Equal(t, []string{"user_a", "user_b"}, room.Members())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := tt.setupRoom()
			members, err := room.Join(&internal.User{ID: tt.userID, JoinedAt: time.Now()})
			tt.validate(t, room, members, err)
		})
	}
}

// TestRoom_CapacityInvariant 測試容量不變式
//
// 不論加入順序如何，每次加入嘗試之後 len(members) <= MaxUsers 都成立。
func TestRoom_CapacityInvariant(t *testing.T) {
	room := internal.NewRoom("r1", 3)

	for i := 0; i < 10; i++ {
		room.Join(&internal.User{ID: fmt.Sprintf("user_%d", i), JoinedAt: time.Now()})
		assert.LessOrEqual(t, room.UserCount(), room.MaxUsers)
	}

	assert.Equal(t, 3, room.UserCount())
}

// TestRoom_Leave 測試移除使用者
func TestRoom_Leave(t *testing.T) {
	tests := []struct {
		name     string
		members  []string
		leaveID  string
		validate func(t *testing.T, members []string, removed bool)
	}{
		{
			name:    "remove existing member",
			members: []string{"user_a", "user_b", "user_c"},
			leaveID: "user_b",
			validate: func(t *testing.T, members []string, removed bool) {
				assert.True(t, removed)
				// 移除後剩餘成員仍保持加入順序
				assert.Equal(t, []string{"user_a", "user_c"}, members)
			},
		},
		{
			name:    "unknown member is a silent no-op",
			members: []string{"user_a"},
			leaveID: "user_x",
			validate: func(t *testing.T, members []string, removed bool) {
				assert.False(t, removed)
				assert.Equal(t, []string{"user_a"}, members)
			},
		},
		{
			name:    "leave on empty room",
			members: nil,
			leaveID: "user_a",
			validate: func(t *testing.T, members []string, removed bool) {
				assert.False(t, removed)
				assert.Empty(t, members)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room := internal.NewRoom("r1", 6)
			for _, id := range tt.members {
				_, err := room.Join(&internal.User{ID: id, JoinedAt: time.Now()})
				require.NoError(t, err)
			}

			members, removed := room.Leave(tt.leaveID)
			tt.validate(t, members, removed)
		})
	}
}

// TestRoom_LeaveIdempotent 測試重複 leave 的冪等性
func TestRoom_LeaveIdempotent(t *testing.T) {
	room := internal.NewRoom("r1", 6)
	room.Join(&internal.User{ID: "user_a", JoinedAt: time.Now()})
	room.Join(&internal.User{ID: "user_b", JoinedAt: time.Now()})

	_, removed := room.Leave("user_a")
	assert.True(t, removed)

	// 第二次是 no-op，不是錯誤
	_, removed = room.Leave("user_a")
	assert.False(t, removed)
	assert.Equal(t, []string{"user_b"}, room.Members())
}

// TestRoom_IsStale 測試陳舊判定
func TestRoom_IsStale(t *testing.T) {
	t.Run("empty and past threshold", func(t *testing.T) {
		room := internal.NewRoom("r1", 6)
		time.Sleep(20 * time.Millisecond)
		assert.True(t, room.IsStale(10*time.Millisecond))
	})

	t.Run("empty but fresh", func(t *testing.T) {
		room := internal.NewRoom("r2", 6)
		assert.False(t, room.IsStale(time.Hour))
	})

	t.Run("old but occupied", func(t *testing.T) {
		room := internal.NewRoom("r3", 6)
		room.Join(&internal.User{ID: "user_a", JoinedAt: time.Now()})
		time.Sleep(20 * time.Millisecond)
		assert.False(t, room.IsStale(10*time.Millisecond))
	})
}
