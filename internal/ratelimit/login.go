package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/identity/internal/config"
	"go.uber.org/zap"
)

const keyLoginAttempts = "identity:login:ip:%s"

// LoginLimiter throttles login attempts per client address.
// Without redis every attempt is allowed.
type LoginLimiter struct {
	log    *zap.Logger
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewLoginLimiter(cfg config.Config, bucket *TokenBucket, log *zap.Logger) *LoginLimiter {
	return &LoginLimiter{
		log:    log.Named("ratelimit.login"),
		bucket: bucket,
		rate:   cfg.LoginRate,
		burst:  cfg.LoginBurst,
	}
}

func (l *LoginLimiter) Enabled() bool {
	return l != nil && l.bucket != nil && l.rate > 0 && l.burst > 0
}

// Allow reports whether clientIP may attempt another login. Limiter failures let the attempt through.
func (l *LoginLimiter) Allow(ctx context.Context, clientIP string) Result {
	if !l.Enabled() {
		return Result{Allowed: true}
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyLoginAttempts, strings.TrimSpace(clientIP)), l.rate, l.burst)
	if err != nil {
		l.log.Warn("login rate limit check failed", zap.Error(err))
		return Result{Allowed: true}
	}
	return res
}
