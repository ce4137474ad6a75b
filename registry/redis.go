package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"messenger-sync/protocol"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "messenger:fanout"

// packet is what travels over the pub/sub channel. An empty To means broadcast.
type packet struct {
	To    string          `json:"to,omitempty"`
	Frame json.RawMessage `json:"frame"`
}

// Redis fans events out through a Redis channel so that every node delivers
// them to its own connections. Connection bookkeeping stays local.
type Redis struct {
	*Local
	client  *redis.Client
	channel string
	sub     *redis.PubSub
	done    chan struct{}
}

// NewRedis subscribes to channel and starts delivering published packets to
// the local connections until Close is called.
func NewRedis(ctx context.Context, client *redis.Client, channel string, local *Local) (*Redis, error) {
	if channel == "" {
		channel = DefaultChannel
	}

	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("registry: subscribe %s: %w", channel, err)
	}

	r := &Redis{
		Local:   local,
		client:  client,
		channel: channel,
		sub:     sub,
		done:    make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func (r *Redis) run() {
	defer close(r.done)

	for msg := range r.sub.Channel() {
		var p packet
		if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
			r.log.Warn("dropping malformed fanout packet", zap.Error(err))
			continue
		}
		if p.To == "" {
			r.deliverAll(p.Frame)
		} else {
			r.deliver(p.To, p.Frame)
		}
	}
}

func (r *Redis) Unicast(ctx context.Context, userID string, ev protocol.ServerEvent) error {
	return r.publish(ctx, userID, ev)
}

func (r *Redis) Broadcast(ctx context.Context, ev protocol.ServerEvent) error {
	return r.publish(ctx, "", ev)
}

func (r *Redis) publish(ctx context.Context, to string, ev protocol.ServerEvent) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(packet{To: to, Frame: frame})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("registry: publish %s: %w", ev.Kind(), err)
	}
	r.metrics.EventOut(string(ev.Kind()))
	return nil
}

func (r *Redis) Close() error {
	err := r.sub.Close()
	<-r.done
	return err
}
