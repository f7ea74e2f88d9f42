package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shramsaathi-backend/pkg/redis"

	goredis "github.com/redis/go-redis/v9"
)

// LockoutConfig holds the failed-login policy.
type LockoutConfig struct {
	MaxAttempts   int           // failed attempts before a block
	AttemptWindow time.Duration // how long failures are counted
	BlockDuration time.Duration // how long a block lasts
}

func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts:   5,
		AttemptWindow: 15 * time.Minute,
		BlockDuration: 15 * time.Minute,
	}
}

// Redis key patterns
const (
	failLoginPrefix    = "fail:login:phone:"
	blockedLoginPrefix = "blocked:login:phone:"
)

// KEYS[1] = counter key, ARGV[1] = TTL in seconds. Returns the count after increment.
const incrWithTTLScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

type attempts struct {
	count        int
	resetAt      time.Time
	blockedUntil time.Time
}

// Lockout blocks a phone number after repeated failed logins. Counters live
// in Redis when the shared client is up, otherwise in process memory.
type Lockout struct {
	config LockoutConfig
	client func() *goredis.Client
	now    func() time.Time

	mu    sync.Mutex
	local map[string]*attempts
}

// NewLockout builds a Lockout. Zero fields in config take the defaults.
func NewLockout(config LockoutConfig) *Lockout {
	def := DefaultLockoutConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.AttemptWindow <= 0 {
		config.AttemptWindow = def.AttemptWindow
	}
	if config.BlockDuration <= 0 {
		config.BlockDuration = def.BlockDuration
	}
	return &Lockout{
		config: config,
		client: redis.Client,
		now:    time.Now,
		local:  make(map[string]*attempts),
	}
}

// Blocked reports whether phone is currently blocked.
func (l *Lockout) Blocked(ctx context.Context, phone string) (bool, error) {
	if client := l.client(); client != nil {
		exists, err := client.Exists(ctx, blockedLoginPrefix+phone).Result()
		if err != nil {
			return false, fmt.Errorf("lockout: check block: %w", err)
		}
		return exists > 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	a, ok := l.local[phone]
	return ok && now.Before(a.blockedUntil), nil
}

// Failed records a failed attempt and reports whether it triggered a block.
func (l *Lockout) Failed(ctx context.Context, phone string) (bool, error) {
	if client := l.client(); client != nil {
		return l.failedRedis(ctx, client, phone)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	a, ok := l.local[phone]
	if !ok || now.After(a.resetAt) {
		a = &attempts{resetAt: now.Add(l.config.AttemptWindow), blockedUntil: a.blockedUntilOrZero()}
		l.local[phone] = a
	}
	a.count++
	if a.count >= l.config.MaxAttempts {
		a.blockedUntil = now.Add(l.config.BlockDuration)
		a.count = 0
		return true, nil
	}
	return false, nil
}

func (l *Lockout) failedRedis(ctx context.Context, client *goredis.Client, phone string) (bool, error) {
	result, err := client.Eval(ctx, incrWithTTLScript, []string{failLoginPrefix + phone}, int(l.config.AttemptWindow.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("lockout: count failure: %w", err)
	}
	count, ok := result.(int64)
	if !ok {
		return false, errors.New("lockout: unexpected result type from Lua script")
	}
	if int(count) < l.config.MaxAttempts {
		return false, nil
	}

	pipe := client.TxPipeline()
	pipe.Set(ctx, blockedLoginPrefix+phone, "1", l.config.BlockDuration)
	pipe.Del(ctx, failLoginPrefix+phone)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("lockout: set block: %w", err)
	}
	return true, nil
}

// Reset clears the failure count after a successful login.
func (l *Lockout) Reset(ctx context.Context, phone string) error {
	if client := l.client(); client != nil {
		return client.Del(ctx, failLoginPrefix+phone).Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.local, phone)
	return nil
}

// prune drops entries whose window and block have both lapsed. Callers hold l.mu.
func (l *Lockout) prune(now time.Time) {
	for phone, a := range l.local {
		if now.After(a.resetAt) && !now.Before(a.blockedUntil) {
			delete(l.local, phone)
		}
	}
}

func (a *attempts) blockedUntilOrZero() time.Time {
	if a == nil {
		return time.Time{}
	}
	return a.blockedUntil
}
