package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store provides the relay's shared ephemeral state in Redis: the online-user
// set and TTL-bound typing marks. Keeping this state out of process memory is
// what lets multiple relay instances agree on presence.
type Store struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings it to ensure the connection
// is working.
func Connect(ctx context.Context, addr string) (*Store, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{cli: cli}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.cli.Close()
}
