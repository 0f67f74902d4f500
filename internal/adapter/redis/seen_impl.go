package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/brandwatch/internal/repository"
)

const seenPrefix = "brandwatch:seen:"

// SeenRepoImpl provides a concrete implementation for the SeenRepository interface using Redis.
type SeenRepoImpl struct {
	client *redis.Client
}

var _ repository.SeenRepository = (*SeenRepoImpl)(nil)

// NewSeenRepo creates a new instance of SeenRepoImpl.
func NewSeenRepo(client *redis.Client) *SeenRepoImpl {
	return &SeenRepoImpl{client: client}
}

// Connect builds a client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	return rdb, nil
}

func (r *SeenRepoImpl) key(id string) string {
	return seenPrefix + id
}

// MarkSeen sets the key with an expiry. SETEX is atomic.
func (r *SeenRepoImpl) MarkSeen(ctx context.Context, id string, expiry time.Duration) error {
	return r.client.SetEx(ctx, r.key(id), "1", expiry).Err()
}

// IsSeen returns true while the key has not expired.
func (r *SeenRepoImpl) IsSeen(ctx context.Context, id string) (bool, error) {
	val, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}
