package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

const onlineUsersKey = "chat:online_users"

// AddOnline adds the user to the shared online set.
func (s *Store) AddOnline(ctx context.Context, userID int) error {
	if err := s.cli.SAdd(ctx, onlineUsersKey, strconv.Itoa(userID)).Err(); err != nil {
		return fmt.Errorf("sadd online: %w", err)
	}
	return nil
}

// RemoveOnline removes the user from the shared online set.
func (s *Store) RemoveOnline(ctx context.Context, userID int) error {
	if err := s.cli.SRem(ctx, onlineUsersKey, strconv.Itoa(userID)).Err(); err != nil {
		return fmt.Errorf("srem online: %w", err)
	}
	return nil
}

// OnlineUsers returns the current online set, sorted for stable broadcasts.
func (s *Store) OnlineUsers(ctx context.Context) ([]int, error) {
	members, err := s.cli.SMembers(ctx, onlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers online: %w", err)
	}
	out := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	sort.Ints(out)
	return out, nil
}
