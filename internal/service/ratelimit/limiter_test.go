package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowBurstThenRefill(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	l := New()
	l.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1", 3, 1), "burst token %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1", 3, 1))
	assert.True(t, l.Allow("10.0.0.2", 3, 1), "keys are independent")

	clock = clock.Add(1500 * time.Millisecond)
	assert.True(t, l.Allow("10.0.0.1", 3, 1))
	assert.False(t, l.Allow("10.0.0.1", 3, 1))
}

func TestSweepDropsIdleBuckets(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	l := New()
	l.now = func() time.Time { return clock }

	l.Allow("a", 1, 1)
	clock = clock.Add(time.Minute)
	l.Allow("b", 1, 1)

	assert.Equal(t, 1, l.Sweep(30*time.Second))
	assert.Equal(t, 0, l.Sweep(30*time.Second))
}
