package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pridehealth/portal-api/pkg/logging"
)

// VelocityChecker limits checkout attempts per account to keep a runaway
// client or stolen token from spraying the gateway.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains velocity check configuration.
type VelocityConfig struct {
	// Max checkout attempts per account per window
	MaxCheckoutsPerAccount int
	CheckoutWindowHours    int

	EnableCheckoutCheck bool
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxCheckoutsPerAccount: 5,
		CheckoutWindowHours:    24,
		EnableCheckoutCheck:    true,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewVelocityChecker creates a new velocity checker.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

// CheckCheckoutVelocity checks if another checkout attempt is allowed for
// the account. Redis being down never blocks a booking; the check fails
// open.
func (v *VelocityChecker) CheckCheckoutVelocity(ctx context.Context, accountID string) (*VelocityResult, error) {
	ctx, span := bookingTracer.Start(ctx, "velocity.check_checkout")
	defer span.End()
	span.SetAttributes(
		attribute.String("portal.account_id", accountID),
	)

	if !v.config.EnableCheckoutCheck || v.redis == nil {
		return &VelocityResult{Allowed: true}, nil
	}

	key := fmt.Sprintf("velocity:checkout:%s", accountID)
	windowDuration := time.Duration(v.config.CheckoutWindowHours) * time.Hour

	count, expiry, err := v.incrementAndGet(ctx, key, windowDuration)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		// Fail open - allow the booking if Redis is down
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxCheckoutsPerAccount,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxCheckoutsPerAccount,
		WindowExpiry: expiry,
	}

	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d checkout attempts in %d hours", v.config.MaxCheckoutsPerAccount, v.config.CheckoutWindowHours)
		v.logger.Warn("checkout velocity exceeded",
			"account_id", accountID,
			"count", count,
			"max", v.config.MaxCheckoutsPerAccount,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}

	return result, nil
}

func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// Set expiry only on first increment
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil {
		ttl = window
	}

	expiry := time.Now().Add(ttl)
	return int(count), expiry, nil
}

// ResetCheckoutVelocity resets the checkout counter for an account (admin
// use).
func (v *VelocityChecker) ResetCheckoutVelocity(ctx context.Context, accountID string) error {
	key := fmt.Sprintf("velocity:checkout:%s", accountID)
	return v.redis.Del(ctx, key).Err()
}
