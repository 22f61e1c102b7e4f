package cache

import (
	"strings"
	"time"

	"github.com/smallbiznis/metersync/internal/config"
	usagedomain "github.com/smallbiznis/metersync/internal/usage/domain"
)

// SummaryCache stores computed usage summaries per contract so the read
// path does not recompute aggregates on every request. Entries are
// invalidated whenever a sync pipeline writes new data for the contract.
type SummaryCache interface {
	GetSummary(contractID string) (usagedomain.Summary, bool)
	SetSummary(contractID string, summary usagedomain.Summary)
	Invalidate(contractID string)
}

type summaryCache struct {
	summaries Cache[string, usagedomain.Summary]
	ttl       time.Duration
}

func NewSummaryCache(cfg config.Config) SummaryCache {
	return &summaryCache{
		summaries: NewTTLCache[string, usagedomain.Summary](),
		ttl:       cfg.CacheTTL,
	}
}

func (c *summaryCache) GetSummary(contractID string) (usagedomain.Summary, bool) {
	return c.summaries.Get(cacheKey(contractID))
}

func (c *summaryCache) SetSummary(contractID string, summary usagedomain.Summary) {
	c.summaries.Set(cacheKey(contractID), summary, c.ttl)
}

func (c *summaryCache) Invalidate(contractID string) {
	c.summaries.Delete(cacheKey(contractID))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
