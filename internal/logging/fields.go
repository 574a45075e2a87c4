package logging

import (
	"log/slog"

	"github.com/foxseedlab/multilingo/internal/domain"
)

func Room(id domain.RoomID) slog.Attr {
	return slog.String("room_id", string(id))
}

func User(id domain.UserID) slog.Attr {
	return slog.Int64("user_id", int64(id))
}

func Conn(id string) slog.Attr {
	return slog.String("conn_id", id)
}

func Language(code string) slog.Attr {
	return slog.String("language", code)
}

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
