package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/foxseedlab/multilingo/internal/logging"
	"github.com/foxseedlab/multilingo/internal/protocol"
	"github.com/foxseedlab/multilingo/internal/registry"
	"github.com/foxseedlab/multilingo/internal/session"
)

// Sessions is what control frames act on.
type Sessions interface {
	AnnouncePresence(ctx context.Context, roomID domain.RoomID, userID domain.UserID, conn registry.Conn)
	EndSession(ctx context.Context, roomID domain.RoomID, requester domain.UserID) error
	Leave(ctx context.Context, roomID domain.RoomID, userID domain.UserID, conn registry.Conn)
	SpeakingStatus(ctx context.Context, roomID domain.RoomID, userID domain.UserID, conn registry.Conn, speaking bool)
	ChangeLanguage(ctx context.Context, roomID domain.RoomID, userID domain.UserID, mainLanguage, translateTo string) error
}

// Client identifies the connection a control frame arrived on.
type Client struct {
	RoomID domain.RoomID
	UserID domain.UserID
	Conn   registry.Conn
}

type Router struct {
	sessions Sessions
}

func NewRouter(sessions Sessions) *Router {
	return &Router{sessions: sessions}
}

// Route dispatches one text frame. It reports whether the connection's read
// loop should stop, which only a leave request does. Frames that cannot be
// understood are logged and dropped.
func (r *Router) Route(ctx context.Context, c Client, data []byte) (stop bool) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		slog.Warn("malformed control frame dropped", logging.Room(c.RoomID), logging.User(c.UserID), logging.Err(err))
		return false
	}

	switch env.Type {
	case protocol.ControlJoin:
		r.sessions.AnnouncePresence(ctx, c.RoomID, c.UserID, c.Conn)
	case protocol.ControlEndSession:
		if err := r.sessions.EndSession(ctx, c.RoomID, c.UserID); err != nil && !errors.Is(err, session.ErrNotCreator) {
			slog.Warn("end_session failed", logging.Room(c.RoomID), logging.User(c.UserID), logging.Err(err))
		}
	case protocol.ControlLeave:
		r.sessions.Leave(ctx, c.RoomID, c.UserID, c.Conn)
		return true
	case protocol.ControlSpeakingStatus:
		var req protocol.SpeakingStatusRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Warn("malformed speaking_status dropped", logging.Room(c.RoomID), logging.User(c.UserID), logging.Err(err))
			return false
		}
		r.sessions.SpeakingStatus(ctx, c.RoomID, c.UserID, c.Conn, req.IsSpeaking)
	case protocol.ControlLanguageChange:
		var req protocol.LanguageChangeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			slog.Warn("malformed language_change dropped", logging.Room(c.RoomID), logging.User(c.UserID), logging.Err(err))
			return false
		}
		if err := r.sessions.ChangeLanguage(ctx, c.RoomID, c.UserID, req.MainLanguage, req.TranslateToLanguage); err != nil {
			slog.Error("language change failed", logging.Room(c.RoomID), logging.User(c.UserID), logging.Err(err))
		}
	default:
		slog.Warn("unknown control frame dropped", logging.Room(c.RoomID), logging.User(c.UserID), "type", env.Type)
	}
	return false
}
