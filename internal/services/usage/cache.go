package usage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// SummaryCache is an optional redis-backed cache in front of the tenant
// summary query. Summaries are derived data; a short TTL bounds
// staleness.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func tenantSummaryKey(tenantID string) string {
	return "tenant_summary:" + tenantID
}

// GetTenantSummary returns a cached summary if present. A nil cache is
// a no-op.
func (c *SummaryCache) GetTenantSummary(ctx context.Context, tenantID string) (*models.TenantSummaryResponse, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, tenantSummaryKey(tenantID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			fiberlog.Warnf("Summary cache read failed for tenant %s: %v", tenantID, err)
		}
		return nil, false
	}

	var summary models.TenantSummaryResponse
	if err := json.Unmarshal(data, &summary); err != nil {
		fiberlog.Warnf("Summary cache entry for tenant %s is corrupt: %v", tenantID, err)
		return nil, false
	}

	return &summary, true
}

// SetTenantSummary stores a summary with the cache TTL. Failures are
// logged and otherwise ignored; the cache is best-effort.
func (c *SummaryCache) SetTenantSummary(ctx context.Context, tenantID string, summary *models.TenantSummaryResponse) {
	if c == nil {
		return
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, tenantSummaryKey(tenantID), data, c.ttl).Err(); err != nil {
		fiberlog.Warnf("Summary cache write failed for tenant %s: %v", tenantID, err)
	}
}
