package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionKeyPrefix = "chat:session:"

// ResolveUser maps a session token to its logical user. Tokens are issued by
// the auth service, which writes chat:session:{token} -> userID; the relay
// only reads them. A connection whose token resolves to nothing is rejected.
func (s *Store) ResolveUser(ctx context.Context, token string) (int, error) {
	if token == "" {
		return 0, ErrSessionNotFound
	}
	val, err := s.cli.Get(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get session: %w", err)
	}
	userID, err := strconv.Atoi(val)
	if err != nil || userID == 0 {
		return 0, ErrSessionNotFound
	}
	return userID, nil
}
