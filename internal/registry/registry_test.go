package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/foxseedlab/multilingo/internal/registry/registrytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roomA domain.RoomID = "room-a"

func TestConnect_BindsUser(t *testing.T) {
	r := New()
	c := registrytest.NewConn("c1")
	r.Connect(roomA, c, 7)

	assert.Equal(t, 1, r.ConnectionCount(roomA))
	assert.True(t, r.IsOnline(roomA, 7))
	assert.ElementsMatch(t, []domain.UserID{7}, r.Users(roomA))
	assert.ElementsMatch(t, []domain.RoomID{roomA}, r.ActiveRooms())
}

func TestConnect_WithoutUser(t *testing.T) {
	r := New()
	r.Connect(roomA, registrytest.NewConn("anon"), domain.NoUser)

	assert.Equal(t, 1, r.ConnectionCount(roomA))
	assert.Empty(t, r.Users(roomA))
}

func TestConnect_LastConnectWins(t *testing.T) {
	r := New()
	first := registrytest.NewConn("first")
	second := registrytest.NewConn("second")
	r.Connect(roomA, first, 7)
	r.Connect(roomA, second, 7)

	online, err := r.SendToUser(context.Background(), roomA, 7, []byte("hi"))
	require.NoError(t, err)
	assert.True(t, online)
	assert.Empty(t, first.Sent())
	assert.Len(t, second.Sent(), 1)

	// The superseded handle disconnecting must not unbind the newer one.
	assert.True(t, r.Disconnect(roomA, first, 7))
	assert.True(t, r.IsOnline(roomA, 7))
	assert.Equal(t, 1, r.ConnectionCount(roomA))
}

func TestDisconnect_Idempotent(t *testing.T) {
	r := New()
	c1 := registrytest.NewConn("c1")
	c2 := registrytest.NewConn("c2")
	r.Connect(roomA, c1, 1)
	r.Connect(roomA, c2, 2)

	assert.True(t, r.Disconnect(roomA, c1, 1))
	countAfterFirst := r.ConnectionCount(roomA)
	usersAfterFirst := r.Users(roomA)

	assert.False(t, r.Disconnect(roomA, c1, 1))
	assert.Equal(t, countAfterFirst, r.ConnectionCount(roomA))
	assert.ElementsMatch(t, usersAfterFirst, r.Users(roomA))
}

func TestDisconnect_UnknownRoom(t *testing.T) {
	r := New()
	assert.False(t, r.Disconnect("missing", registrytest.NewConn("c"), 1))
}

func TestDisconnect_LastConnectionRemovesRoom(t *testing.T) {
	r := New()
	var emptied []domain.RoomID
	r.OnRoomEmpty(func(id domain.RoomID) { emptied = append(emptied, id) })

	c1 := registrytest.NewConn("c1")
	c2 := registrytest.NewConn("c2")
	r.Connect(roomA, c1, 1)
	r.Connect(roomA, c2, 2)

	r.Disconnect(roomA, c1, 1)
	assert.Empty(t, emptied)
	assert.Contains(t, r.ActiveRooms(), roomA)

	r.Disconnect(roomA, c2, 2)
	assert.Equal(t, []domain.RoomID{roomA}, emptied)
	assert.NotContains(t, r.ActiveRooms(), roomA)
	assert.Equal(t, 0, r.ConnectionCount(roomA))

	r.Disconnect(roomA, c2, 2)
	assert.Len(t, emptied, 1)
}

func TestSendToUser_Offline(t *testing.T) {
	r := New()
	online, err := r.SendToUser(context.Background(), roomA, 9, []byte("x"))
	require.NoError(t, err)
	assert.False(t, online)

	r.Connect(roomA, registrytest.NewConn("c1"), 1)
	online, err = r.SendToUser(context.Background(), roomA, 9, []byte("x"))
	require.NoError(t, err)
	assert.False(t, online)
}

func TestSendToUser_FailureEvicts(t *testing.T) {
	r := New()
	broken := registrytest.NewConn("broken")
	healthy := registrytest.NewConn("healthy")
	broken.FailWith(errors.New("broken pipe"))
	r.Connect(roomA, broken, 1)
	r.Connect(roomA, healthy, 2)

	online, err := r.SendToUser(context.Background(), roomA, 1, []byte("x"))
	assert.True(t, online)
	require.Error(t, err)

	assert.False(t, r.IsOnline(roomA, 1))
	assert.Equal(t, 1, r.ConnectionCount(roomA))
	closed, reason := broken.Closed()
	assert.True(t, closed)
	assert.Equal(t, "send failed", reason)
}

func TestSendToUser_FailureOfLastConnectionCleansRoom(t *testing.T) {
	r := New()
	emptied := 0
	r.OnRoomEmpty(func(domain.RoomID) { emptied++ })

	broken := registrytest.NewConn("broken")
	broken.FailWith(errors.New("reset"))
	r.Connect(roomA, broken, 1)

	_, err := r.SendToUser(context.Background(), roomA, 1, []byte("x"))
	require.Error(t, err)
	assert.Equal(t, 1, emptied)
	assert.Empty(t, r.ActiveRooms())
}

func TestBroadcast_ResilientToBrokenConnection(t *testing.T) {
	r := New()
	a := registrytest.NewConn("a")
	b := registrytest.NewConn("b")
	broken := registrytest.NewConn("broken")
	broken.FailWith(errors.New("write: broken pipe"))
	r.Connect(roomA, a, 1)
	r.Connect(roomA, broken, 2)
	r.Connect(roomA, b, 3)

	res := r.Broadcast(context.Background(), roomA, []byte(`{"type":"x"}`))

	assert.Equal(t, BroadcastResult{Delivered: 2, Failed: 1}, res)
	assert.Len(t, a.Sent(), 1)
	assert.Len(t, b.Sent(), 1)
	assert.Equal(t, 2, r.ConnectionCount(roomA))
	assert.False(t, r.IsOnline(roomA, 2))
	assert.True(t, r.IsOnline(roomA, 1))
	assert.True(t, r.IsOnline(roomA, 3))
}

func TestBroadcastExcept_SkipsSender(t *testing.T) {
	r := New()
	sender := registrytest.NewConn("sender")
	other := registrytest.NewConn("other")
	r.Connect(roomA, sender, 1)
	r.Connect(roomA, other, 2)

	res := r.BroadcastExcept(context.Background(), roomA, sender, []byte("x"))
	assert.Equal(t, 1, res.Delivered)
	assert.Empty(t, sender.Sent())
	assert.Len(t, other.Sent(), 1)
}

func TestBroadcast_UnknownRoom(t *testing.T) {
	r := New()
	assert.Equal(t, BroadcastResult{}, r.Broadcast(context.Background(), "nope", []byte("x")))
}

func TestCloseRoom(t *testing.T) {
	r := New()
	emptied := 0
	r.OnRoomEmpty(func(domain.RoomID) { emptied++ })

	a := registrytest.NewConn("a")
	b := registrytest.NewConn("b")
	r.Connect(roomA, a, 1)
	r.Connect(roomA, b, 2)

	assert.Equal(t, 2, r.CloseRoom(roomA, "Session ended by host"))

	for _, c := range []*registrytest.Conn{a, b} {
		closed, reason := c.Closed()
		assert.True(t, closed)
		assert.Equal(t, "Session ended by host", reason)
	}
	assert.Equal(t, 0, r.ConnectionCount(roomA))
	assert.Empty(t, r.Users(roomA))
	assert.Empty(t, r.ActiveRooms())
	assert.Equal(t, 1, emptied)

	// Late disconnects from the closed sockets are no-ops.
	assert.False(t, r.Disconnect(roomA, a, 1))
	assert.Equal(t, 1, emptied)
	assert.Equal(t, 0, r.CloseRoom(roomA, "again"))
}

func TestConnect_AfterCloseRecreatesRoom(t *testing.T) {
	r := New()
	r.Connect(roomA, registrytest.NewConn("a"), 1)
	r.CloseRoom(roomA, "done")

	c := registrytest.NewConn("fresh")
	r.Connect(roomA, c, 1)
	assert.Equal(t, 1, r.ConnectionCount(roomA))
	assert.True(t, r.IsOnline(roomA, 1))
}

func TestRooms_AreIsolated(t *testing.T) {
	r := New()
	a := registrytest.NewConn("a")
	b := registrytest.NewConn("b")
	r.Connect("room-1", a, 1)
	r.Connect("room-2", b, 1)

	r.Broadcast(context.Background(), "room-1", []byte("x"))
	assert.Len(t, a.Sent(), 1)
	assert.Empty(t, b.Sent())
}

func TestConcurrentConnectDisconnect(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := registrytest.NewConn(fmt.Sprintf("c%d", i))
			uid := domain.UserID(i + 1)
			r.Connect(roomA, c, uid)
			r.Broadcast(context.Background(), roomA, []byte("x"))
			_, _ = r.SendToUser(context.Background(), roomA, uid, []byte("y"))
			r.Disconnect(roomA, c, uid)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.ConnectionCount(roomA))
	assert.Empty(t, r.ActiveRooms())
}

func TestEvict_ReportsUnboundUser(t *testing.T) {
	r := New()
	var order []string
	r.OnEvict(func(id domain.RoomID, uid domain.UserID) {
		order = append(order, fmt.Sprintf("evict %s/%d", id, uid))
	})
	r.OnRoomEmpty(func(id domain.RoomID) { order = append(order, "empty "+string(id)) })

	healthy := registrytest.NewConn("healthy")
	broken := registrytest.NewConn("broken")
	broken.FailWith(errors.New("broken pipe"))
	r.Connect(roomA, healthy, 1)
	r.Connect(roomA, broken, 2)

	r.BroadcastExcept(context.Background(), roomA, healthy, []byte("x"))
	r.Broadcast(context.Background(), roomA, []byte("y"))
	assert.Equal(t, []string{"evict room-a/2"}, order)

	healthy.FailWith(errors.New("reset"))
	_, err := r.SendToUser(context.Background(), roomA, 1, []byte("z"))
	require.Error(t, err)
	assert.Equal(t, []string{"evict room-a/2", "evict room-a/1", "empty room-a"}, order)
}

func TestEvict_StaleConnectionReportsNobody(t *testing.T) {
	r := New()
	evicted := 0
	r.OnEvict(func(domain.RoomID, domain.UserID) { evicted++ })

	stale := registrytest.NewConn("stale")
	stale.FailWith(errors.New("broken pipe"))
	r.Connect(roomA, stale, 1)
	r.Connect(roomA, registrytest.NewConn("fresh"), 1)

	r.Broadcast(context.Background(), roomA, []byte("x"))

	assert.Zero(t, evicted)
	assert.True(t, r.IsOnline(roomA, 1))
}

func TestEvict_NotReportedForDisconnectOrClose(t *testing.T) {
	r := New()
	evicted := 0
	r.OnEvict(func(domain.RoomID, domain.UserID) { evicted++ })

	c1 := registrytest.NewConn("c1")
	r.Connect(roomA, c1, 1)
	r.Connect(roomA, registrytest.NewConn("c2"), 2)
	r.Disconnect(roomA, c1, 1)
	r.CloseRoom(roomA, "bye")

	assert.Zero(t, evicted)
}

func TestUserConn(t *testing.T) {
	r := New()
	_, ok := r.UserConn(roomA, 1)
	assert.False(t, ok)

	first := registrytest.NewConn("first")
	second := registrytest.NewConn("second")
	r.Connect(roomA, first, 1)
	r.Connect(roomA, second, 1)

	got, ok := r.UserConn(roomA, 1)
	require.True(t, ok)
	assert.Same(t, second, got)
}
