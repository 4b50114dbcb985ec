package outbox

// Redis channels for entity change notifications. Tables without an explicit
// entry publish to the default per-table channel.
var channelByTable = map[string]string{
	"coupons":                 "gatrix:events:coupons",
	"remote_config_templates": "gatrix:events:remote_config",
	"client_versions":         "gatrix:events:client_versions",
	"service_notices":         "gatrix:events:notices",
}

// ChannelFor returns the Redis pub/sub channel for an entity type.
func ChannelFor(entityType string) string {
	if ch, ok := channelByTable[entityType]; ok {
		return ch
	}
	return "gatrix:events:" + entityType
}
