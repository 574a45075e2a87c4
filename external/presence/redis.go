package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func presenceKey(roomID domain.RoomID) string {
	return "presence:room:" + string(roomID)
}

// Touch records userID as seen now and extends the room key's lifetime.
func (s *RedisStore) Touch(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	key := presenceKey(roomID)
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(s.now().Unix()),
		Member: userID.String(),
	})
	pipe.Expire(ctx, key, s.ttl*2)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Remove(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	return s.rdb.ZRem(ctx, presenceKey(roomID), userID.String()).Err()
}

// Online drops members not seen within the TTL and returns the rest.
func (s *RedisStore) Online(ctx context.Context, roomID domain.RoomID) ([]domain.UserID, error) {
	key := presenceKey(roomID)
	threshold := s.now().Add(-s.ttl).Unix()
	if err := s.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(threshold, 10)).Err(); err != nil {
		return nil, err
	}
	members, err := s.rdb.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return parseMembers(members), nil
}

func (s *RedisStore) Clear(ctx context.Context, roomID domain.RoomID) error {
	return s.rdb.Del(ctx, presenceKey(roomID)).Err()
}

func (s *RedisStore) Shutdown() error {
	return s.rdb.Close()
}

func parseMembers(members []string) []domain.UserID {
	out := make([]domain.UserID, 0, len(members))
	for _, m := range members {
		if id, ok := domain.ParseUserID(m); ok {
			out = append(out, id)
		}
	}
	return out
}
