package cache

import (
	"testing"
	"time"

	"github.com/smallbiznis/metersync/internal/config"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := NewTTLCache[string, int]()

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 42, time.Minute)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42, got)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheNonPositiveTTLNeverStores(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 0)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestSummaryCacheInvalidate(t *testing.T) {
	sc := NewSummaryCache(config.Config{CacheTTL: time.Minute})

	summary := usagedomain.Summary{ContractID: "C-1"}
	sc.SetSummary("C-1", summary)

	got, ok := sc.GetSummary("C-1")
	require.True(t, ok)
	assert.Equal(t, "C-1", got.ContractID)

	// Keys are normalized, so lookups are case-insensitive.
	_, ok = sc.GetSummary("c-1")
	assert.True(t, ok)

	sc.Invalidate("C-1")
	_, ok = sc.GetSummary("C-1")
	assert.False(t, ok)
}
