package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/promptopt/models"
)

func TestKeyDistinguishesFields(t *testing.T) {
	low, high := 0.1, 0.2
	base := Key("p", "m", &low, "concise", "zh")

	assert.Equal(t, base, Key("p", "m", &low, "concise", "zh"))
	assert.NotEqual(t, base, Key("p2", "m", &low, "concise", "zh"))
	assert.NotEqual(t, base, Key("p", "m2", &low, "concise", "zh"))
	assert.NotEqual(t, base, Key("p", "m", &high, "concise", "zh"))
	assert.NotEqual(t, base, Key("p", "m", nil, "concise", "zh"))
	assert.NotEqual(t, base, Key("p", "m", &low, "creative", "zh"))
	assert.NotEqual(t, base, Key("p", "m", &low, "concise", "ja"))
}

func TestGetSetExpiry(t *testing.T) {
	c := New(10, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	resp := &models.OptimizeResponse{Success: true, ID: "opt_1", Metrics: &models.OptimizeMetrics{TokensSaved: 4}}
	c.Set("k", resp)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "opt_1", got.ID)

	// Returned values are copies.
	got.Metrics.TokensSaved = 99
	got.CacheStatus = "hit"
	again, _ := c.Get("k")
	assert.Equal(t, 4, again.Metrics.TokensSaved)
	assert.Empty(t, again.CacheStatus)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 0, c.Len())
}

func TestFailuresNotCached(t *testing.T) {
	c := New(10, time.Minute)
	c.Set("k", &models.OptimizeResponse{Success: false})
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestDisabled(t *testing.T) {
	c := New(10, 0)
	c.Set("k", &models.OptimizeResponse{Success: true})
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCapacity(t *testing.T) {
	c := New(2, time.Minute)
	for _, k := range []string{"a", "b", "c"} {
		c.Set(k, &models.OptimizeResponse{Success: true, ID: k})
	}
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("c")
	assert.True(t, ok)
}
