package effects

import (
	"context"
	"fmt"
	"time"

	"github.com/maxidea1024/gatrix-sub004/internal/cache"
	"github.com/maxidea1024/gatrix-sub004/internal/ops"
)

const cacheTTL = 24 * time.Hour

// RemoteConfigHandler mirrors remote config values into the per-environment
// Redis hash the game servers read.
func RemoteConfigHandler() Handler {
	return HandlerFunc(func(ctx context.Context, entityID string, after ops.Record, environment string, actorID int) error {
		key := fmt.Sprintf("gatrix:%s:remote_config", environment)
		if after == nil {
			return cache.HDel(ctx, key, entityID)
		}
		return cache.HSetJSON(ctx, key, entityID, after, cacheTTL)
	})
}

// ClientVersionHandler invalidates the cached version gate for a platform
// so the next client check rebuilds it from the database.
func ClientVersionHandler() Handler {
	return HandlerFunc(func(ctx context.Context, entityID string, after ops.Record, environment string, actorID int) error {
		platform := ""
		if after != nil {
			if v, ok := after["platform"].(string); ok {
				platform = v
			}
		}
		if platform == "" {
			return cache.DelPattern(ctx, fmt.Sprintf("gatrix:%s:client_version:*", environment))
		}
		return cache.Del(ctx, fmt.Sprintf("gatrix:%s:client_version:%s", environment, platform))
	})
}
