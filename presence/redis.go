package presence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultKey = "messenger:presence"

// decrScript removes the field once the count drops to zero so HKEYS stays
// equal to the online set.
var decrScript = redis.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call("HDEL", KEYS[1], ARGV[1])
end
return n
`)

// Redis keeps per-user connection counts in a hash shared by all nodes.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Incr(ctx context.Context, userID string) error {
	if err := r.client.HIncrBy(ctx, r.key, userID, 1).Err(); err != nil {
		return fmt.Errorf("presence: incr %s: %w", userID, err)
	}
	return nil
}

func (r *Redis) Decr(ctx context.Context, userID string) error {
	if err := decrScript.Run(ctx, r.client, []string{r.key}, userID).Err(); err != nil {
		return fmt.Errorf("presence: decr %s: %w", userID, err)
	}
	return nil
}

func (r *Redis) Members(ctx context.Context) ([]string, error) {
	users, err := r.client.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("presence: members: %w", err)
	}
	return users, nil
}
