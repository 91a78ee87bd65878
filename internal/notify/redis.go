package notify

import (
	"context"
	"time"

	"callmgr/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Channel names for the redis pub/sub bus.
const (
	ChannelPresence      = "callmgr.presence"
	ChannelRegistrations = "callmgr.registrations"
	ChannelDestroys      = "callmgr.channels"
)

// RedisPublisher pushes notifications as JSON on redis pub/sub channels.
type RedisPublisher struct {
	rdb   *redis.Client
	clock func() time.Time
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, clock: time.Now}
}

func (p *RedisPublisher) PublishPresenceEvent(ctx context.Context, name, node string, fields map[string]string) error {
	return utils.PublishJSON(ctx, p.rdb, ChannelPresence, Notification{
		Name:   name,
		Node:   node,
		Fields: fields,
		At:     p.clock().UTC(),
	})
}

func (p *RedisPublisher) PublishChannelDestroy(ctx context.Context, node string, fields map[string]string) error {
	return utils.PublishJSON(ctx, p.rdb, ChannelDestroys, Notification{
		Node:   node,
		Fields: fields,
		At:     p.clock().UTC(),
	})
}

func (p *RedisPublisher) PublishRegistrationSuccess(ctx context.Context, fields map[string]string) error {
	return utils.PublishJSON(ctx, p.rdb, ChannelRegistrations, Notification{
		Fields: fields,
		At:     p.clock().UTC(),
	})
}
