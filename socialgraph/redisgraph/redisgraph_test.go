package redisgraph

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ggoodman/toolwire/socialgraph"
	"github.com/ggoodman/toolwire/socialgraph/graphtest"
)

// Requires a reachable Redis (REDIS_ADDR, default localhost:6379).
func TestRedisGraph(t *testing.T) {
	g, err := NewFromEnv(context.Background())
	if err != nil {
		t.Skipf("skipping redis graph tests: %v", err)
		return
	}
	_ = g.Close()

	graphtest.RunStoreTests(t, func(t *testing.T) socialgraph.Store {
		gg, err := NewFromEnv(context.Background())
		if err != nil {
			t.Fatalf("NewFromEnv: %v", err)
		}
		gg.keyPrefix = "toolwire:test:" + uuid.NewString() + ":"
		t.Cleanup(func() {
			ctx := context.Background()
			keys, _ := gg.client.Keys(ctx, gg.keyPrefix+"*").Result()
			if len(keys) > 0 {
				_ = gg.client.Del(ctx, keys...).Err()
			}
			_ = gg.Close()
		})
		return gg
	})
}
