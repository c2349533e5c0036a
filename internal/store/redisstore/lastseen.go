package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"campus_realtime/internal/domain"
)

const (
	// LastSeenKeyPrefix is the key prefix of per-user last-seen values.
	// Key: realtime:presence:lastseen:{userId}, Value: unix micros
	LastSeenKeyPrefix = "realtime:presence:lastseen:"

	lastSeenTTL = 90 * 24 * time.Hour
)

// saveLastSeenScript stores ARGV[1] unless the key already holds an equal
// or later instant. Either way the TTL is refreshed.
var saveLastSeenScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

func BuildLastSeenKey(userID string) string {
	return LastSeenKeyPrefix + userID
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// LastSeenStore keeps presence last-seen instants in Redis so they survive
// process restarts.
type LastSeenStore struct {
	client *redis.Client
}

var _ domain.LastSeenStore = (*LastSeenStore)(nil)

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, opts Options) (*LastSeenStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &LastSeenStore{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *LastSeenStore {
	return &LastSeenStore{client: client}
}

// SaveLastSeen never moves a stored instant backwards, so concurrent
// disconnects of one user can land in any order.
func (s *LastSeenStore) SaveLastSeen(ctx context.Context, userID string, at time.Time) error {
	keys := []string{BuildLastSeenKey(userID)}
	err := saveLastSeenScript.Run(ctx, s.client, keys, at.UnixMicro(), lastSeenTTL.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("save last seen: %w", err)
	}
	return nil
}

// LoadLastSeen returns nil when the user was never seen.
func (s *LastSeenStore) LoadLastSeen(ctx context.Context, userID string) (*time.Time, error) {
	val, err := s.client.Get(ctx, BuildLastSeenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last seen: %w", err)
	}
	micros, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse last seen %q: %w", val, err)
	}
	t := time.UnixMicro(micros).UTC()
	return &t, nil
}

func (s *LastSeenStore) Close() error {
	return s.client.Close()
}
