package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// adjustScript applies a clamped addition to one prior field atomically,
// so concurrent learners on separate processes still compose additively
// instead of overwriting each other.
var adjustScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur then
  cur = tonumber(cur)
else
  cur = tonumber(ARGV[5])
end
local v = cur + tonumber(ARGV[2])
local min = tonumber(ARGV[3])
local max = tonumber(ARGV[4])
if v < min then v = min end
if v > max then v = max end
redis.call('HSET', KEYS[1], ARGV[1], tostring(v))
return tostring(v)
`)

// DefaultRedisKey is the hash that holds the shared priors.
const DefaultRedisKey = "recovery:priors"

// RedisPriors is a PriorStore backed by a Redis hash, for deployments
// where several engine processes should learn into the same priors.
// Fields are "action|category" keys; values are stringified floats.
// Keys never written remain at their seed defaults.
type RedisPriors struct {
	client  *redis.Client
	hashKey string
}

// RedisPriorsOption configures a RedisPriors store.
type RedisPriorsOption func(*RedisPriors)

// WithRedisKey overrides the hash key used for the prior store.
func WithRedisKey(key string) RedisPriorsOption {
	return func(r *RedisPriors) { r.hashKey = key }
}

// NewRedisPriors wraps an existing Redis client as a PriorStore. The
// caller owns the client's lifecycle.
func NewRedisPriors(client *redis.Client, opts ...RedisPriorsOption) *RedisPriors {
	r := &RedisPriors{client: client, hashKey: DefaultRedisKey}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot merges the stored overrides over the seed defaults. HGETALL
// is a single round trip, so the view is consistent per build.
func (r *RedisPriors) Snapshot(ctx context.Context) (map[Key]float64, error) {
	stored, err := r.client.HGetAll(ctx, r.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis priors: snapshot: %w", err)
	}

	out := DefaultPriors()
	for field, raw := range stored {
		key, ok := ParseKey(field)
		if !ok {
			continue
		}
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			continue
		}
		out[key] = clampPrior(v)
	}
	return out, nil
}

// Adjust applies a clamped addition server-side and returns the new value.
func (r *RedisPriors) Adjust(ctx context.Context, key Key, delta float64) (float64, error) {
	res, err := adjustScript.Run(ctx, r.client,
		[]string{r.hashKey},
		key.String(),
		strconv.FormatFloat(delta, 'f', -1, 64),
		strconv.FormatFloat(PriorMin, 'f', -1, 64),
		strconv.FormatFloat(PriorMax, 'f', -1, 64),
		strconv.FormatFloat(defaultPrior(key), 'f', -1, 64),
	).Result()
	if err != nil {
		return 0, fmt.Errorf("redis priors: adjust %s: %w", key, err)
	}

	raw, ok := res.(string)
	if !ok {
		return 0, fmt.Errorf("redis priors: unexpected script result %T", res)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("redis priors: parse %q: %w", raw, err)
	}
	return v, nil
}
