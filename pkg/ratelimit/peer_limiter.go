// Package ratelimit implements the sliding-window limiter used by the
// packet pipeline's incoming rate and throughput stages. It is a
// Redis-backed sorted-set window, one tier per concern (packets/s,
// amount/s), keyed per peer rather than per IP/user/endpoint.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Tier names a limited concern; used both as the Redis key component and
// as the metrics label when a check fails.
type Tier string

const (
	TierPacketRate Tier = "packet_rate"
	TierThroughput Tier = "throughput"
)

// PeerTierConfig configures one tier's limit and window.
type PeerTierConfig struct {
	Limit  int64
	Window time.Duration
}

// PeerLimiterConfig configures the per-peer packet-rate and throughput
// tiers enforced by pipeline stages 5/6/10.
type PeerLimiterConfig struct {
	IncomingPacketRate PeerTierConfig
	IncomingThroughput PeerTierConfig
	OutgoingThroughput PeerTierConfig
}

// PeerLimiter enforces the tiered per-peer limits via Redis sorted-set
// sliding windows: each accepted event appends a member scored by its
// nanosecond timestamp, windows are trimmed lazily on each check.
type PeerLimiter struct {
	redis  *redis.Client
	config PeerLimiterConfig
	logger *zap.Logger
}

// NewPeerLimiter builds a PeerLimiter bound to a Redis client.
func NewPeerLimiter(rdb *redis.Client, config PeerLimiterConfig, logger *zap.Logger) *PeerLimiter {
	return &PeerLimiter{redis: rdb, config: config, logger: logger}
}

// CheckResult reports whether an event is allowed under a tier's window.
type CheckResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// CheckPacketRate enforces the incoming packets/s tier for peerID. Each
// call both checks and records one packet.
func (l *PeerLimiter) CheckPacketRate(ctx context.Context, peerID string) (*CheckResult, error) {
	cfg := l.config.IncomingPacketRate
	if cfg.Limit <= 0 {
		return &CheckResult{Allowed: true, Remaining: -1}, nil
	}
	return l.checkWindow(ctx, TierPacketRate, peerID, cfg.Limit, cfg.Window, 1)
}

// CheckIncomingThroughput enforces the incoming amount/s tier, recording
// amount units (not a fixed weight of 1) against the window.
func (l *PeerLimiter) CheckIncomingThroughput(ctx context.Context, peerID string, amount int64) (*CheckResult, error) {
	cfg := l.config.IncomingThroughput
	if cfg.Limit <= 0 {
		return &CheckResult{Allowed: true, Remaining: -1}, nil
	}
	return l.checkWindow(ctx, TierThroughput, "in:"+peerID, cfg.Limit, cfg.Window, amount)
}

// CheckOutgoingThroughput enforces the outgoing amount/s tier.
func (l *PeerLimiter) CheckOutgoingThroughput(ctx context.Context, peerID string, amount int64) (*CheckResult, error) {
	cfg := l.config.OutgoingThroughput
	if cfg.Limit <= 0 {
		return &CheckResult{Allowed: true, Remaining: -1}, nil
	}
	return l.checkWindow(ctx, TierThroughput, "out:"+peerID, cfg.Limit, cfg.Window, amount)
}

// checkWindow trims the window, sums existing weight, and — if admitting
// weight would not exceed limit — records the new member. The weight is
// encoded into each member string and the running sum is recomputed by
// parsing the weights back out of the window's members, so amount-weighted
// (not just count-weighted) tiers need no second key.
func (l *PeerLimiter) checkWindow(ctx context.Context, tier Tier, key string, limit int64, window time.Duration, weight int64) (*CheckResult, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", tier, key)
	now := time.Now()
	windowStart := now.Add(-window)

	pipe := l.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	sumCmd := pipe.ZRangeByScoreWithScores(ctx, redisKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", windowStart.UnixNano()),
		Max: "+inf",
	})
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	var used int64
	for _, z := range sumCmd.Val() {
		used += memberWeight(z.Member)
	}

	if used+weight > limit {
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		return &CheckResult{Allowed: false, Remaining: remaining, RetryAfter: window}, nil
	}

	member := fmt.Sprintf("%d:%d", now.UnixNano(), weight)
	addPipe := l.redis.Pipeline()
	addPipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	addPipe.Expire(ctx, redisKey, window*2)
	if _, err := addPipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("rate limit record failed: %w", err)
	}

	return &CheckResult{Allowed: true, Remaining: limit - used - weight}, nil
}

func memberWeight(member interface{}) int64 {
	s, ok := member.(string)
	if !ok {
		return 1
	}
	var ts, w int64
	if _, err := fmt.Sscanf(s, "%d:%d", &ts, &w); err != nil {
		return 1
	}
	return w
}
