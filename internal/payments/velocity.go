package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// VelocityChecker implements rate limiting for abuse prevention.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains velocity check configuration.
type VelocityConfig struct {
	// Max intake submissions per email per window
	MaxSubmissionsPerEmail int
	SubmissionWindow       time.Duration

	EnableSubmissionCheck bool
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxSubmissionsPerEmail: 5,
		SubmissionWindow:       time.Hour,
		EnableSubmissionCheck:  true,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CheckType    string
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
	if config.SubmissionWindow <= 0 {
		config.SubmissionWindow = time.Hour
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

// CheckSubmissionVelocity checks if another intake submission is allowed for email.
func (v *VelocityChecker) CheckSubmissionVelocity(ctx context.Context, email string) (*VelocityResult, error) {
	ctx, span := stripeTracer.Start(ctx, "velocity.check_submission")
	defer span.End()
	span.SetAttributes(attribute.String("velocity.check_type", "submission"))

	if !v.config.EnableSubmissionCheck || v.config.MaxSubmissionsPerEmail <= 0 {
		return &VelocityResult{Allowed: true, CheckType: "submission"}, nil
	}

	key := submissionKey(email)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.SubmissionWindow)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		// Fail open - allow the submission if Redis is down
		return &VelocityResult{Allowed: true, CheckType: "submission", Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxSubmissionsPerEmail,
		CheckType:    "submission",
		CurrentCount: count,
		MaxAllowed:   v.config.MaxSubmissionsPerEmail,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d submissions in %s", v.config.MaxSubmissionsPerEmail, v.config.SubmissionWindow)
		v.logger.Warn("submission velocity exceeded",
			"count", count,
			"max", v.config.MaxSubmissionsPerEmail,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// AllowSubmission implements orders.SubmissionLimiter.
func (v *VelocityChecker) AllowSubmission(ctx context.Context, email string) (bool, error) {
	result, err := v.CheckSubmissionVelocity(ctx, email)
	if err != nil {
		return true, err
	}
	return result.Allowed, nil
}

// ResetSubmissionVelocity clears the counter for email (admin use).
func (v *VelocityChecker) ResetSubmissionVelocity(ctx context.Context, email string) error {
	return v.redis.Del(ctx, submissionKey(email)).Err()
}

// GetSubmissionStats returns the current counter without incrementing it.
func (v *VelocityChecker) GetSubmissionStats(ctx context.Context, email string) (*VelocityResult, error) {
	key := submissionKey(email)
	count, err := v.redis.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return &VelocityResult{Allowed: true, CheckType: "submission", MaxAllowed: v.config.MaxSubmissionsPerEmail}, nil
	}
	if err != nil {
		return nil, err
	}
	ttl, _ := v.redis.TTL(ctx, key).Result()
	return &VelocityResult{
		Allowed:      count < v.config.MaxSubmissionsPerEmail,
		CheckType:    "submission",
		CurrentCount: count,
		MaxAllowed:   v.config.MaxSubmissionsPerEmail,
		WindowExpiry: time.Now().Add(ttl),
	}, nil
}

func submissionKey(email string) string {
	return "velocity:submission:" + strings.ToLower(strings.TrimSpace(email))
}

// incrementAndGet increments a counter and returns the new value with expiry time.
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
	return int(count), time.Now().Add(ttl), nil
}
