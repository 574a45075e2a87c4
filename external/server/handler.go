package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/foxseedlab/multilingo/internal/control"
	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/foxseedlab/multilingo/internal/logging"
	"github.com/foxseedlab/multilingo/internal/protocol"
	"github.com/foxseedlab/multilingo/internal/registry"
	"github.com/foxseedlab/multilingo/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	banner        = "Multilingo Server is running!"
	healthTimeout = 3 * time.Second
	drainPoll     = 50 * time.Millisecond
)

type Sessions interface {
	Join(ctx context.Context, roomID domain.RoomID, userID domain.UserID, conn registry.Conn) error
	Disconnect(ctx context.Context, roomID domain.RoomID, userID domain.UserID, conn registry.Conn)
	Heartbeat(ctx context.Context, roomID domain.RoomID, userID domain.UserID)
}

type AudioStream interface {
	Process(ctx context.Context, frame []byte)
	Close()
}

// StreamFactory opens the audio stream for one connection.
type StreamFactory func(roomID domain.RoomID, userID domain.UserID) (AudioStream, error)

type Router interface {
	Route(ctx context.Context, c control.Client, data []byte) (stop bool)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	cfg      *config.Config
	sessions Sessions
	streams  StreamFactory
	router   Router
	health   Pinger
	upgrader websocket.Upgrader
	active   atomic.Int64
}

func NewHandler(cfg *config.Config, sessions Sessions, streams StreamFactory, router Router, health Pinger) *Handler {
	return &Handler{
		cfg:      cfg,
		sessions: sessions,
		streams:  streams,
		router:   router,
		health:   health,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are native apps and browsers on other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", h.root)
	r.GET("/healthz", h.healthz)
	r.GET("/ws/:room_id/:user_id", h.serveWebSocket)
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": banner})
}

func (h *Handler) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := h.health.Ping(ctx); err != nil {
		slog.Warn("health check failed", logging.Err(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "connected"})
}

func (h *Handler) serveWebSocket(c *gin.Context) {
	roomID := domain.RoomID(c.Param("room_id"))
	userID, ok := domain.ParseUserID(c.Param("user_id"))
	if roomID == "" || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room or user id"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", logging.Room(roomID), logging.User(userID), logging.Err(err))
		return
	}
	h.active.Add(1)
	defer h.active.Add(-1)
	// The connection outlives the upgrade request.
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()
	h.serve(ctx, ws, roomID, userID)
}

func (h *Handler) serve(ctx context.Context, ws *websocket.Conn, roomID domain.RoomID, userID domain.UserID) {
	conn := newWSConn(ws, h.cfg.WSWriteTimeout)
	defer conn.Close("connection closed")
	ws.SetReadLimit(h.cfg.WSReadLimit)

	stream, err := h.streams(roomID, userID)
	if err != nil {
		slog.Error("failed to open audio stream", logging.Room(roomID), logging.User(userID), logging.Err(err))
		h.reject(ctx, conn, err)
		return
	}
	defer stream.Close()

	if err := h.sessions.Join(ctx, roomID, userID, conn); err != nil {
		slog.Warn("join rejected", logging.Room(roomID), logging.User(userID), logging.Conn(conn.ID()), logging.Err(err))
		h.reject(ctx, conn, err)
		return
	}
	defer h.sessions.Disconnect(ctx, roomID, userID, conn)

	ws.SetPongHandler(func(string) error {
		h.sessions.Heartbeat(ctx, roomID, userID)
		return ws.SetReadDeadline(time.Now().Add(h.cfg.WSPongTimeout))
	})
	go h.keepalive(ctx, conn)

	client := control.Client{RoomID: roomID, UserID: userID, Conn: conn}
	for {
		// Measured from the end of the previous frame's work, so a slow
		// frame delays the next read without timing it out.
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.WSPongTimeout))
		kind, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("connection dropped", logging.Room(roomID), logging.User(userID), logging.Conn(conn.ID()), logging.Err(err))
			} else {
				slog.Debug("connection closed", logging.Room(roomID), logging.User(userID), logging.Conn(conn.ID()))
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			stream.Process(ctx, data)
		case websocket.TextMessage:
			if h.router.Route(ctx, client, data) {
				return
			}
		}
	}
}

// Drain waits until every WebSocket handler has returned.
func (h *Handler) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for h.active.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d connections still open: %w", h.active.Load(), ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (h *Handler) keepalive(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(h.cfg.WSPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				slog.Debug("ping failed", logging.Conn(conn.ID()), logging.Err(err))
				return
			}
		}
	}
}

func (h *Handler) reject(ctx context.Context, conn *wsConn, cause error) {
	code := rejectCode(cause)
	msg, err := json.Marshal(protocol.NewError(code, cause.Error()))
	if err == nil {
		_ = conn.Send(ctx, msg)
	}
	_ = conn.Close(code)
}

func rejectCode(err error) string {
	switch {
	case errors.Is(err, session.ErrRoomNotFound):
		return protocol.ErrCodeRoomNotFound
	case errors.Is(err, session.ErrRoomClosing):
		return protocol.ErrCodeRoomClosing
	default:
		return protocol.ErrCodeInternal
	}
}
