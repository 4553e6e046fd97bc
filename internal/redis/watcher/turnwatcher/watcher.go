package turnwatcher

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"duelgo/internal/services/duel"
)

// Run listens to key-expiry events and discards rounds that never
// collected their second move. Run must be started once at service boot.
func Run(ctx context.Context, rdb *redis.Client, svc duel.IDuelService) {
	_ = rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
	ps := rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-ps.Channel():
			if !strings.HasPrefix(m.Payload, "turn_t:") {
				continue
			}
			code := strings.TrimPrefix(m.Payload, "turn_t:")
			svc.ExpireTurn(ctx, code)
		}
	}
}
