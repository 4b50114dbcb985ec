package ws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/maxidea1024/gatrix-sub004/internal/cache"
)

// StartRelay subscribes to the entity event channels on Redis and fans each
// message out to connected dashboard clients as changes:update. Returns a
// stop function.
func StartRelay(pattern string) func() {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := cache.Client.PSubscribe(ctx, pattern)

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var payload interface{}
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					log.Printf("[WebSocket] Failed to unmarshal relay payload on %s: %v", msg.Channel, err)
					continue
				}
				BroadcastToAll("changes:update", map[string]interface{}{
					"channel": msg.Channel,
					"data":    payload,
				})
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("[WebSocket] Relay subscribed to %s", pattern)
	return func() {
		cancel()
		_ = pubsub.Close()
	}
}
