// SPDX-License-Identifier: MIT

package mutator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/turnstile/internal/metrics"
	"github.com/ManuGH/turnstile/internal/verify"
)

const (
	defaultLeaseTTL    = 30 * time.Second
	defaultLeasePrefix = "turnstile:lease:"
	redisOpTimeout     = 2 * time.Second
)

// releaseScript deletes the lease only if this door still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseConfig configures a LeaseGuard.
type LeaseConfig struct {
	Door   string
	TTL    time.Duration
	Prefix string
}

// LeaseGuard takes a short Redis lease per ticket before calling the
// wrapped mutator, so two doors scanning the same ticket at once cannot
// both reach the backend. When Redis is unreachable the call goes through
// and the backend stays the only arbiter.
type LeaseGuard struct {
	next   verify.Mutator
	client redis.UniversalClient
	cfg    LeaseConfig
	logger zerolog.Logger
}

// NewLeaseGuard wraps next.
func NewLeaseGuard(next verify.Mutator, client redis.UniversalClient, cfg LeaseConfig, logger zerolog.Logger) *LeaseGuard {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultLeaseTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultLeasePrefix
	}
	if cfg.Door == "" {
		cfg.Door = "door"
	}
	return &LeaseGuard{
		next:   next,
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "lease").Logger(),
	}
}

// Key returns the lease key for a ticket.
func (g *LeaseGuard) Key(ticketID string) string { return g.cfg.Prefix + ticketID }

// CheckIn implements verify.Mutator.
func (g *LeaseGuard) CheckIn(ctx context.Context, ticketID string) (verify.Result, error) {
	key := g.Key(ticketID)

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	acquired, err := g.client.SetNX(opCtx, key, g.cfg.Door, g.cfg.TTL).Result()
	cancel()
	if err != nil {
		g.logger.Warn().Err(err).Str("key", key).Msg("lease unavailable, calling backend without it")
		return g.next.CheckIn(ctx, ticketID)
	}
	if !acquired {
		metrics.IncLeaseConflict()
		holder, _ := g.holder(ctx, key)
		g.logger.Info().Str("key", key).Str("holder", holder).Msg("ticket is leased by another door")
		return verify.Result{Message: leaseMessage(holder)}, nil
	}

	defer g.release(key)
	return g.next.CheckIn(ctx, ticketID)
}

func (g *LeaseGuard) holder(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	v, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (g *LeaseGuard) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := releaseScript.Run(ctx, g.client, []string{key}, g.cfg.Door).Err(); err != nil {
		g.logger.Warn().Err(err).Str("key", key).Msg("lease release failed")
	}
}

// Ping checks the Redis connection.
func (g *LeaseGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func leaseMessage(holder string) string {
	if holder == "" {
		return "ticket is being checked in at another door"
	}
	return fmt.Sprintf("ticket is being checked in at %s", holder)
}
