package lease

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sbportal/editlock/pkg/observability/logger"
)

const (
	defaultRedisLeasePrefix    = "editlock:lease"
	defaultRedisLeaseOperation = 3 * time.Second
)

// The resource key holds the lease record as JSON; a second key maps the
// lease id back to the resource key so heartbeat/release by id stay one
// round trip. Both keys share the lease TTL, so expiry is native: an
// expired lease simply stops existing.
var (
	insertScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

	extendScript = redis.NewScript(`
local resKey = redis.call("GET", KEYS[1])
if not resKey then
  return 0
end
local raw = redis.call("GET", resKey)
if not raw then
  redis.call("DEL", KEYS[1])
  return 0
end
local lease = cjson.decode(raw)
if lease.id ~= ARGV[1] or lease.holder_id ~= ARGV[2] then
  return 0
end
lease.expires_at = ARGV[3]
lease.last_heartbeat_at = ARGV[4]
redis.call("SET", resKey, cjson.encode(lease), "PX", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 1
`)

	deleteScript = redis.NewScript(`
local resKey = redis.call("GET", KEYS[1])
if not resKey then
  return 0
end
local raw = redis.call("GET", resKey)
if not raw then
  redis.call("DEL", KEYS[1])
  return 0
end
local lease = cjson.decode(raw)
if lease.id ~= ARGV[1] or lease.holder_id ~= ARGV[2] then
  return 0
end
redis.call("DEL", resKey)
redis.call("DEL", KEYS[1])
return 1
`)

	deleteByResourceScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local lease = cjson.decode(raw)
if lease.holder_id ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("DEL", ARGV[2] .. lease.id)
return 1
`)
)

// RedisStoreConfig configures the Redis lease store.
type RedisStoreConfig struct {
	URL              string
	Prefix           string
	OperationTimeout time.Duration
}

func (c *RedisStoreConfig) normalize() {
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = defaultRedisLeasePrefix
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultRedisLeaseOperation
	}
}

// RedisStore keeps lease records in Redis with TTL-native expiry. Insert uses
// an existence-checked SET so concurrent acquires on one key resolve to a
// single winner; extend and delete verify the holder inside Lua scripts.
type RedisStore struct {
	client *redis.Client
	log    logger.Logger
	config RedisStoreConfig
}

// NewRedisStore creates a Redis-backed lease store.
func NewRedisStore(cfg RedisStoreConfig, log logger.Logger) (*RedisStore, error) {
	if log == nil {
		return nil, leaseError(ErrInvalidArgument, "logger is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, leaseError(ErrInvalidArgument, "redis url is required")
	}
	cfg.normalize()

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Join(leaseError(ErrInvalidArgument, "parse redis url failed"), err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(leaseError(ErrUnavailable, "ping redis failed"), err)
	}

	return &RedisStore{
		client: client,
		log:    log,
		config: cfg,
	}, nil
}

func newRedisStoreWithClient(client *redis.Client, cfg RedisStoreConfig, log logger.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, leaseError(ErrInvalidArgument, "client is required")
	}
	if log == nil {
		return nil, leaseError(ErrInvalidArgument, "logger is required")
	}
	cfg.normalize()
	return &RedisStore{
		client: client,
		log:    log,
		config: cfg,
	}, nil
}

// Insert creates both lease keys unless the resource key already exists.
func (s *RedisStore) Insert(ctx context.Context, l *Lease) error {
	if s == nil || s.client == nil {
		return leaseError(ErrNotInitialized, "")
	}
	if l == nil {
		return leaseError(ErrInvalidArgument, "lease is required")
	}
	px := time.Until(l.ExpiresAt).Milliseconds()
	if px <= 0 {
		return leaseError(ErrInvalidArgument, "lease already expired")
	}
	raw, err := json.Marshal(l)
	if err != nil {
		return err
	}

	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	resKey := s.resourceKey(l.Key())
	result, err := insertScript.Run(opCtx, s.client,
		[]string{resKey, s.idKey(l.ID)}, raw, resKey, px).Int64()
	if err != nil {
		return errors.Join(leaseError(ErrUnavailable, "insert lease failed"), err)
	}
	if result == 0 {
		return leaseError(ErrDuplicate, "resource already leased")
	}
	return nil
}

// Find returns the live lease by id, or nil.
func (s *RedisStore) Find(ctx context.Context, id string) (*Lease, error) {
	if s == nil || s.client == nil {
		return nil, leaseError(ErrNotInitialized, "")
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	resKey, err := s.client.Get(opCtx, s.idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(leaseError(ErrUnavailable, "find lease failed"), err)
	}
	l, err := s.getLease(opCtx, resKey)
	if err != nil || l == nil {
		return l, err
	}
	if l.ID != id {
		return nil, nil
	}
	return l, nil
}

// FindByResource returns the live lease on the key, or nil.
func (s *RedisStore) FindByResource(ctx context.Context, key Key) (*Lease, error) {
	if s == nil || s.client == nil {
		return nil, leaseError(ErrNotInitialized, "")
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.getLease(opCtx, s.resourceKey(key))
}

// Extend moves expiry/heartbeat forward when the lease is held by holderID.
func (s *RedisStore) Extend(ctx context.Context, id, holderID string, expiresAt, heartbeatAt time.Time) (bool, error) {
	if s == nil || s.client == nil {
		return false, leaseError(ErrNotInitialized, "")
	}
	px := time.Until(expiresAt).Milliseconds()
	if px <= 0 {
		return false, leaseError(ErrInvalidArgument, "expiry must be in the future")
	}

	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	result, err := extendScript.Run(opCtx, s.client, []string{s.idKey(id)},
		id, holderID,
		expiresAt.UTC().Format(time.RFC3339Nano),
		heartbeatAt.UTC().Format(time.RFC3339Nano),
		px).Int64()
	if err != nil {
		return false, errors.Join(leaseError(ErrUnavailable, "extend lease failed"), err)
	}
	return result == 1, nil
}

// Delete removes the lease when held by holderID.
func (s *RedisStore) Delete(ctx context.Context, id, holderID string) (bool, error) {
	if s == nil || s.client == nil {
		return false, leaseError(ErrNotInitialized, "")
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	result, err := deleteScript.Run(opCtx, s.client, []string{s.idKey(id)}, id, holderID).Int64()
	if err != nil {
		return false, errors.Join(leaseError(ErrUnavailable, "delete lease failed"), err)
	}
	return result == 1, nil
}

// DeleteByResource removes the lease on the key when held by holderID.
func (s *RedisStore) DeleteByResource(ctx context.Context, key Key, holderID string) error {
	if s == nil || s.client == nil {
		return leaseError(ErrNotInitialized, "")
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	_, err := deleteByResourceScript.Run(opCtx, s.client,
		[]string{s.resourceKey(key)}, holderID, s.idKeyPrefix()).Int64()
	if err != nil {
		return errors.Join(leaseError(ErrUnavailable, "delete lease failed"), err)
	}
	return nil
}

// PurgeExpired is a no-op: key TTLs already reclaim expired leases.
func (s *RedisStore) PurgeExpired(ctx context.Context, key Key) error {
	if s == nil || s.client == nil {
		return leaseError(ErrNotInitialized, "")
	}
	return nil
}

// Ping reports Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return leaseError(ErrNotInitialized, "")
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.client.Ping(opCtx).Err()
}

// Close closes Redis client connections.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) getLease(ctx context.Context, key string) (*Lease, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(leaseError(ErrUnavailable, "find lease failed"), err)
	}
	var l Lease
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *RedisStore) resourceKey(key Key) string {
	return strings.TrimRight(s.config.Prefix, ":") + ":res:" + key.ResourceType + ":" + key.ResourceID
}

func (s *RedisStore) idKey(id string) string {
	return s.idKeyPrefix() + id
}

func (s *RedisStore) idKeyPrefix() string {
	return strings.TrimRight(s.config.Prefix, ":") + ":id:"
}

func (s *RedisStore) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.config.OperationTimeout)
}
