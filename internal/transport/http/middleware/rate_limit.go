package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	rateLimitProblemType  = "https://brewingmachine.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// RateLimitStore defines the persistence operations required by the middleware.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

type RateLimiter struct {
	store  RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

// Limit returns a Gin middleware enforcing the rule's sliding window.
// Store failures fail open: the request proceeds and the failure is logged.
func (rl *RateLimiter) Limit(rule RateLimitRule) gin.HandlerFunc {
	if rule.Name == "" {
		rule.Name = "default"
	}

	return func(c *gin.Context) {
		if rl.store == nil || rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			c.Next()
			return
		}

		identifier, ok := rule.Identifier(c)
		if !ok || identifier == "" {
			c.Next()
			return
		}

		now := rl.now()
		key := fmt.Sprintf("%s:%s", rule.Name, identifier)

		allowed, remaining, reset, err := rl.evaluate(c.Request.Context(), rule, key, now)
		if err != nil {
			rl.logger.Warn("rate limit check failed",
				zap.String("rule", rule.Name),
				zap.String("identifier", identifier),
				zap.Error(err))
			c.Next()
			return
		}

		headers := c.Writer.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			retrySeconds := int(math.Ceil(reset.Sub(now).Seconds()))
			if retrySeconds < 0 {
				retrySeconds = 0
			}
			headers.Set("Retry-After", strconv.Itoa(retrySeconds))
			rl.respondRateLimited(c, retrySeconds)
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) evaluate(ctx context.Context, rule RateLimitRule, key string, now time.Time) (allowed bool, remaining int, reset time.Time, err error) {
	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return false, 0, time.Time{}, err
	}

	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return false, 0, time.Time{}, err
	}

	reset = now.Add(rule.Window)
	if oldest, has, err := rl.store.OldestAttempt(ctx, key, rule.Window, now); err != nil {
		return false, 0, time.Time{}, err
	} else if has {
		reset = oldest.Add(rule.Window)
	}

	if count >= rule.Limit {
		return false, 0, reset, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return false, 0, time.Time{}, err
	}

	remaining = rule.Limit - count - 1
	if remaining < 0 {
		remaining = 0
	}

	return true, remaining, reset, nil
}

func (rl *RateLimiter) respondRateLimited(c *gin.Context, retrySeconds int) {
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	problem := ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", retrySeconds),
		Instance:   instance,
		RetryAfter: retrySeconds,
		TraceID:    GetTraceID(c),
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, problem)
}
