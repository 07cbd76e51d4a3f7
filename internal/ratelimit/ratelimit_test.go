package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucket(t *testing.T) {
	bucket := NewTokenBucket(2, 5) // 2 tokens per second, capacity of 5

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "initial request %d", i)
	}
	assert.False(t, bucket.Allow(), "bucket should be empty")

	time.Sleep(1100 * time.Millisecond)

	assert.True(t, bucket.Allow())
	assert.True(t, bucket.Allow())
	assert.False(t, bucket.Allow())
}

func TestLimiterPerAddress(t *testing.T) {
	l := NewLimiter(2, 0, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1:5123"), "burst connection %d", i)
	}
	// same IP, different source port
	assert.False(t, l.Allow("10.0.0.1:6000"))

	assert.True(t, l.Allow("10.0.0.2:5123"), "other address has its own bucket")
	assert.Equal(t, 2, l.tracked())
}

func TestLimiterGlobal(t *testing.T) {
	l := NewLimiter(0, 2, 2)

	assert.True(t, l.Allow("10.0.0.1:1"))
	assert.True(t, l.Allow("10.0.0.2:1"))
	assert.False(t, l.Allow("10.0.0.3:1"))
	assert.Equal(t, 0, l.tracked())
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(0, 0, 5)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("192.168.1.10:40000"))
	}
}

func TestLimiterBareHost(t *testing.T) {
	l := NewLimiter(1, 0, 1)
	assert.True(t, l.Allow("pipe"))
	assert.False(t, l.Allow("pipe"))
}

func TestLimiterPrune(t *testing.T) {
	l := NewLimiter(1, 0, 1)
	l.Allow("10.0.0.1:1")
	l.Allow("10.0.0.2:1")

	assert.Equal(t, 0, l.Prune(time.Hour))
	assert.Equal(t, 2, l.tracked())

	time.Sleep(20 * time.Millisecond)
	l.Allow("10.0.0.2:1")
	assert.Equal(t, 1, l.Prune(10*time.Millisecond))
	assert.Equal(t, 1, l.tracked())
}
