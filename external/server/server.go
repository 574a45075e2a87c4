package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/gin-gonic/gin"
)

const closeReasonShutdown = "Server shutting down"

// Rooms is the live connection set closed on shutdown.
type Rooms interface {
	ActiveRooms() []domain.RoomID
	CloseRoom(roomID domain.RoomID, reason string) int
}

type Server struct {
	http    *http.Server
	handler *Handler
	rooms   Rooms
}

func NewServer(cfg *config.Config, h *Handler, rooms Rooms) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if cfg.IsDevelopment() {
		engine.Use(gin.Logger())
	}
	engine.Use(gin.Recovery())
	h.Register(engine)

	return &Server{
		http: &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: engine,
		},
		handler: h,
		rooms:   rooms,
	}
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the server stops. A graceful shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes every room still open and waits
// for the WebSocket handlers to finish their cleanup. Hijacked connections
// are not tracked by http.Server, so they are closed here.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	rooms := s.rooms.ActiveRooms()
	for _, id := range rooms {
		s.rooms.CloseRoom(id, closeReasonShutdown)
	}
	if len(rooms) > 0 {
		slog.Info("closed rooms for shutdown", "rooms", len(rooms))
	}
	return errors.Join(err, s.handler.Drain(ctx))
}
