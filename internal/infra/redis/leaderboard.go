package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"mindquest-service/internal/domain"
)

const (
	boardKey = "leaderboard:xp"
	namesKey = "leaderboard:names"
)

// Leaderboard keeps the XP ranking in a Redis sorted set with a companion
// hash for display names. Scores are written as absolute totals, so replaying
// an already-deduplicated stat merge cannot skew the ranking.
type Leaderboard struct {
	client *redis.Client
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

func (l *Leaderboard) Record(ctx context.Context, userID, name string, xp int) error {
	pipe := l.client.Pipeline()
	pipe.ZAdd(ctx, boardKey, redis.Z{Score: float64(xp), Member: userID})
	pipe.HSet(ctx, namesKey, userID, name)
	_, err := pipe.Exec(ctx)
	return err
}

func (l *Leaderboard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	scored, err := l.client.ZRevRangeWithScores(ctx, boardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(scored))
	for _, z := range scored {
		ids = append(ids, z.Member.(string))
	}
	names, err := l.client.HMGet(ctx, namesKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(scored))
	for i, z := range scored {
		name := ""
		if i < len(names) {
			if s, ok := names[i].(string); ok {
				name = s
			}
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID: ids[i],
			Name:   name,
			XP:     int(z.Score),
		})
	}
	return entries, nil
}
