package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVirtualClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewVirtualClock(start)
	assert.Equal(t, start, c.Now())

	next := c.Advance(time.Minute)
	assert.Equal(t, start.Add(time.Minute), next)
	assert.Equal(t, start.Add(time.Minute), c.Now())

	pinned := start.Add(24 * time.Hour)
	c.Set(pinned)
	assert.Equal(t, pinned, c.Now())
}

func TestRealClockAdvances(t *testing.T) {
	c := RealClock{}
	a := c.Now()
	time.Sleep(time.Millisecond)
	b := c.Now()
	assert.True(t, b.After(a))
}
