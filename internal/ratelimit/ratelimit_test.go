package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/identity/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLockerWithoutClient(t *testing.T) {
	l := NewLocker(nil)

	_, ok, err := l.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.False(t, ok)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
}

func TestTokenBucketValidation(t *testing.T) {
	b := NewTokenBucket(nil)

	_, err := b.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrLimiterNotConfigured)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 50*time.Second, bucketTTL(0.2, 5))
	assert.Equal(t, time.Second, bucketTTL(1000, 1))
}

func TestScriptValueParsing(t *testing.T) {
	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, int64(0), toInt(nil))
	assert.InDelta(t, 2.5, toFloat("2.5"), 0.0001)
	assert.InDelta(t, 3, toFloat(int64(3)), 0.0001)
}

func TestLoginLimiterDisabledWithoutRedis(t *testing.T) {
	l := NewLoginLimiter(config.Config{LoginRate: 1, LoginBurst: 1}, nil, zap.NewNop())

	assert.False(t, l.Enabled())
	for range 3 {
		assert.True(t, l.Allow(context.Background(), "10.0.0.1").Allowed)
	}
}
