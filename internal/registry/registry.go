package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/foxseedlab/multilingo/internal/logging"
)

// Conn is a live client connection. Two Conn values are the same
// connection only when they are the same handle.
type Conn interface {
	ID() string
	Send(ctx context.Context, msg []byte) error
	Close(reason string) error
}

type BroadcastResult struct {
	Delivered int
	Failed    int
}

type room struct {
	mu    sync.Mutex
	id    domain.RoomID
	conns map[Conn]struct{}
	users map[domain.UserID]Conn
	// dead is set once the entry has been detached from the registry.
	dead bool
}

func newRoom(id domain.RoomID) *room {
	return &room{
		id:    id,
		conns: make(map[Conn]struct{}),
		users: make(map[domain.UserID]Conn),
	}
}

// removeLocked drops conn and reports whether it was present, along with
// the user it was still bound to, or NoUser.
func (rm *room) removeLocked(conn Conn) (bool, domain.UserID) {
	_, ok := rm.conns[conn]
	delete(rm.conns, conn)
	unbound := domain.NoUser
	for uid, c := range rm.users {
		if c == conn {
			delete(rm.users, uid)
			unbound = uid
		}
	}
	return ok, unbound
}

func (rm *room) snapshotLocked() []Conn {
	out := make([]Conn, 0, len(rm.conns))
	for c := range rm.conns {
		out = append(out, c)
	}
	return out
}

// Registry tracks live connections per room and the user bound to each.
// mu guards the rooms map only; per-room state is guarded by room.mu.
// Lock order is room.mu then mu.
type Registry struct {
	mu      sync.Mutex
	rooms   map[domain.RoomID]*room
	onEmpty []func(domain.RoomID)
	onEvict []func(domain.RoomID, domain.UserID)
}

func New() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]*room)}
}

// OnRoomEmpty registers fn to run after a room loses its last connection.
// Hooks run without any registry lock held.
func (r *Registry) OnRoomEmpty(fn func(domain.RoomID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEmpty = append(r.onEmpty, fn)
}

// OnEvict registers fn to run when a failed send drops the connection a user
// was bound to. It does not run for Disconnect or CloseRoom. Hooks run
// without any registry lock held, before any OnRoomEmpty hook for the same
// removal.
func (r *Registry) OnEvict(fn func(domain.RoomID, domain.UserID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = append(r.onEvict, fn)
}

func (r *Registry) lockRoom(roomID domain.RoomID, create bool) *room {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[roomID]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil
			}
			rm = newRoom(roomID)
			r.rooms[roomID] = rm
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if !rm.dead {
			return rm
		}
		// Detached between lookup and lock; retry against the map.
		rm.mu.Unlock()
	}
}

// unlockRoom releases rm, detaching it first when a removal left it without
// connections.
func (r *Registry) unlockRoom(rm *room, removed bool) bool {
	emptied := false
	if removed && len(rm.conns) == 0 && !rm.dead {
		r.detachLocked(rm)
		emptied = true
	}
	rm.mu.Unlock()
	return emptied
}

func (r *Registry) detachLocked(rm *room) {
	rm.dead = true
	r.mu.Lock()
	if r.rooms[rm.id] == rm {
		delete(r.rooms, rm.id)
	}
	r.mu.Unlock()
}

func (r *Registry) fireEmpty(roomID domain.RoomID) {
	r.mu.Lock()
	hooks := append([]func(domain.RoomID){}, r.onEmpty...)
	r.mu.Unlock()

	slog.Debug("room has no connections left", logging.Room(roomID))
	for _, fn := range hooks {
		fn(roomID)
	}
}

// Connect registers conn in the room. A non-zero userID rebinds the user to
// conn, replacing any earlier connection of the same user.
func (r *Registry) Connect(roomID domain.RoomID, conn Conn, userID domain.UserID) {
	rm := r.lockRoom(roomID, true)
	rm.conns[conn] = struct{}{}
	if userID != domain.NoUser {
		rm.users[userID] = conn
	}
	total := len(rm.conns)
	rm.mu.Unlock()

	slog.Info("connection registered", logging.Room(roomID), logging.User(userID), logging.Conn(conn.ID()), "connections", total)
}

// Disconnect removes conn from the room. It reports whether conn was
// registered; calling it again for the same conn is a no-op.
func (r *Registry) Disconnect(roomID domain.RoomID, conn Conn, userID domain.UserID) bool {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return false
	}
	removed, _ := rm.removeLocked(conn)
	emptied := r.unlockRoom(rm, removed)

	if removed {
		slog.Info("connection removed", logging.Room(roomID), logging.User(userID), logging.Conn(conn.ID()))
	}
	if emptied {
		r.fireEmpty(roomID)
	}
	return removed
}

// SendToUser delivers msg to the connection bound to userID. online is false
// when the user has no connection in the room. A failed send evicts and
// closes that connection.
func (r *Registry) SendToUser(ctx context.Context, roomID domain.RoomID, userID domain.UserID, msg []byte) (bool, error) {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return false, nil
	}
	conn, ok := rm.users[userID]
	rm.mu.Unlock()
	if !ok {
		return false, nil
	}

	if err := conn.Send(ctx, msg); err != nil {
		r.evict(roomID, []Conn{conn}, "send failed")
		return true, fmt.Errorf("send to user %d: %w", userID, err)
	}
	return true, nil
}

func (r *Registry) Broadcast(ctx context.Context, roomID domain.RoomID, msg []byte) BroadcastResult {
	return r.broadcast(ctx, roomID, nil, msg)
}

// BroadcastExcept is Broadcast skipping the except connection.
func (r *Registry) BroadcastExcept(ctx context.Context, roomID domain.RoomID, except Conn, msg []byte) BroadcastResult {
	return r.broadcast(ctx, roomID, except, msg)
}

func (r *Registry) broadcast(ctx context.Context, roomID domain.RoomID, except Conn, msg []byte) BroadcastResult {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return BroadcastResult{}
	}
	targets := rm.snapshotLocked()
	rm.mu.Unlock()

	var res BroadcastResult
	var failed []Conn
	for _, c := range targets {
		if except != nil && c == except {
			continue
		}
		if err := c.Send(ctx, msg); err != nil {
			slog.Warn("broadcast send failed", logging.Room(roomID), logging.Conn(c.ID()), logging.Err(err))
			failed = append(failed, c)
			continue
		}
		res.Delivered++
	}
	res.Failed = len(failed)
	if len(failed) > 0 {
		r.evict(roomID, failed, "send failed")
	}
	return res
}

func (r *Registry) evict(roomID domain.RoomID, conns []Conn, reason string) {
	var removed []Conn
	var unbound []domain.UserID
	emptied := false
	if rm := r.lockRoom(roomID, false); rm != nil {
		for _, c := range conns {
			ok, uid := rm.removeLocked(c)
			if !ok {
				continue
			}
			removed = append(removed, c)
			if uid != domain.NoUser {
				unbound = append(unbound, uid)
			}
		}
		emptied = r.unlockRoom(rm, len(removed) > 0)
	}

	for _, c := range removed {
		slog.Info("evicting broken connection", logging.Room(roomID), logging.Conn(c.ID()))
		if err := c.Close(reason); err != nil {
			slog.Debug("close after failed send", logging.Conn(c.ID()), logging.Err(err))
		}
	}
	if len(unbound) > 0 {
		r.mu.Lock()
		hooks := append([]func(domain.RoomID, domain.UserID){}, r.onEvict...)
		r.mu.Unlock()
		for _, uid := range unbound {
			for _, fn := range hooks {
				fn(roomID, uid)
			}
		}
	}
	if emptied {
		r.fireEmpty(roomID)
	}
}

// CloseRoom detaches every connection of the room and closes each with a
// normal closure carrying reason.
func (r *Registry) CloseRoom(roomID domain.RoomID, reason string) int {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return 0
	}
	conns := rm.snapshotLocked()
	clear(rm.conns)
	clear(rm.users)
	r.detachLocked(rm)
	rm.mu.Unlock()

	for _, c := range conns {
		if err := c.Close(reason); err != nil {
			slog.Debug("close during room shutdown", logging.Room(roomID), logging.Conn(c.ID()), logging.Err(err))
		}
	}
	slog.Info("room closed", logging.Room(roomID), "connections", len(conns), "reason", reason)
	r.fireEmpty(roomID)
	return len(conns)
}

func (r *Registry) ConnectionCount(roomID domain.RoomID) int {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return 0
	}
	defer rm.mu.Unlock()
	return len(rm.conns)
}

// Users lists the users currently bound to a connection in the room.
func (r *Registry) Users(roomID domain.RoomID) []domain.UserID {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return nil
	}
	defer rm.mu.Unlock()
	out := make([]domain.UserID, 0, len(rm.users))
	for uid := range rm.users {
		out = append(out, uid)
	}
	return out
}

// UserConn returns the connection userID is currently bound to.
func (r *Registry) UserConn(roomID domain.RoomID, userID domain.UserID) (Conn, bool) {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return nil, false
	}
	defer rm.mu.Unlock()
	c, ok := rm.users[userID]
	return c, ok
}

func (r *Registry) IsOnline(roomID domain.RoomID, userID domain.UserID) bool {
	rm := r.lockRoom(roomID, false)
	if rm == nil {
		return false
	}
	defer rm.mu.Unlock()
	_, ok := rm.users[userID]
	return ok
}

func (r *Registry) ActiveRooms() []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.RoomID, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}
