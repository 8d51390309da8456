package sequence

import (
	"context"
	"fmt"
	"time"

	"accrualplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out monotonically increasing, human-readable batch codes.
// Codes identify batch runs in logs and notifications; correctness of the
// ledgers never depends on them.
type Generator interface {
	NextDistributionRunCode(ctx context.Context, date string) (string, error)
	NextRankBonusRunCode(ctx context.Context, month string) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{rdb: p.Redis}
}

func (g *RedisGenerator) NextDistributionRunCode(ctx context.Context, date string) (string, error) {
	return g.nextCode(ctx, "DST", date)
}

func (g *RedisGenerator) NextRankBonusRunCode(ctx context.Context, month string) (string, error) {
	return g.nextCode(ctx, "RNK", month)
}

func (g *RedisGenerator) nextCode(ctx context.Context, prefix, period string) (string, error) {
	key := rediskey.BuildSequenceKey(prefix, period)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	// Period keys are transient; keep them around long enough for replays.
	g.rdb.Expire(ctx, key, 45*24*time.Hour)

	return fmt.Sprintf("%s-%s-%03d", prefix, period, seq), nil
}
