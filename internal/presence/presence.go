package presence

import (
	"context"

	"github.com/foxseedlab/multilingo/internal/domain"
)

// Store keeps a TTL-based view of which users are live in a room, shared
// across server instances.
type Store interface {
	Touch(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	Remove(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
	Online(ctx context.Context, roomID domain.RoomID) ([]domain.UserID, error)
	Clear(ctx context.Context, roomID domain.RoomID) error
}

// NoopStore is used when no shared presence backend is configured.
type NoopStore struct{}

func (NoopStore) Touch(context.Context, domain.RoomID, domain.UserID) error  { return nil }
func (NoopStore) Remove(context.Context, domain.RoomID, domain.UserID) error { return nil }
func (NoopStore) Online(context.Context, domain.RoomID) ([]domain.UserID, error) {
	return nil, nil
}
func (NoopStore) Clear(context.Context, domain.RoomID) error { return nil }
