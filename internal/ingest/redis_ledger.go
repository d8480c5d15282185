package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisLedger shares the dedup window across replicas via SET NX with a TTL.
type redisLedger struct {
	client *redis.Client
	window time.Duration
	log    *zap.Logger
}

// NewRedisLedger builds a ledger backed by Redis. On Redis errors it fails
// open and reports the item as processable; the durable notification check
// downstream still prevents duplicate suggestions.
func NewRedisLedger(client *redis.Client, window time.Duration, log *zap.Logger) Ledger {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &redisLedger{client: client, window: window, log: log}
}

func (l *redisLedger) ShouldProcess(ctx context.Context, accountID, externalID string) bool {
	key := fmt.Sprintf("ingest:seen:%s:%s", accountID, externalID)
	ok, err := l.client.SetNX(ctx, key, 1, l.window).Result()
	if err != nil {
		l.log.Warn("dedup ledger unavailable, falling back to durable check",
			zap.String("account_id", accountID), zap.Error(err))
		return true
	}
	return ok
}
