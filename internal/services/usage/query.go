package usage

import (
	"context"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDailyWindowDays = 30
	defaultRawLimit        = 1000
	dateLayout             = "2006-01-02"
)

type aggregateTotals struct {
	TotalRequests         int64           `gorm:"column:total_requests"`
	TotalPromptTokens     int64           `gorm:"column:total_prompt_tokens"`
	TotalCompletionTokens int64           `gorm:"column:total_completion_tokens"`
	TotalTokens           int64           `gorm:"column:total_tokens"`
	TotalCost             decimal.Decimal `gorm:"column:total_cost"`
}

type breakdownRow struct {
	Key      string          `gorm:"column:dim"`
	Requests int64           `gorm:"column:requests"`
	Tokens   int64           `gorm:"column:tokens"`
	Cost     decimal.Decimal `gorm:"column:cost"`
}

// TenantSummary returns the overall usage summary for a tenant: totals,
// first/last usage timestamps, and breakdowns by provider, model and
// cloud provider. The three breakdowns are independent queries and run
// concurrently.
func (s *Service) TenantSummary(ctx context.Context, tenantID string) (*models.TenantSummaryResponse, error) {
	if cached, ok := s.cache.GetTenantSummary(ctx, tenantID); ok {
		return cached, nil
	}

	var totals aggregateTotals
	err := s.db.WithContext(ctx).
		Model(&models.TokenUsageRaw{}).
		Where("tenant_id = ?", tenantID).
		Select(
			"COUNT(*) as total_requests",
			"COALESCE(SUM(prompt_tokens), 0) as total_prompt_tokens",
			"COALESCE(SUM(completion_tokens), 0) as total_completion_tokens",
			"COALESCE(SUM(total_tokens), 0) as total_tokens",
			"COALESCE(SUM(calculated_cost), 0) as total_cost",
		).
		Scan(&totals).Error
	if err != nil {
		return nil, models.NewStorageError("failed to get tenant totals", err)
	}

	summary := &models.TenantSummaryResponse{
		TenantID:              tenantID,
		TotalRequests:         totals.TotalRequests,
		TotalPromptTokens:     totals.TotalPromptTokens,
		TotalCompletionTokens: totals.TotalCompletionTokens,
		TotalTokens:           totals.TotalTokens,
		TotalCost:             totals.TotalCost,
	}

	if totals.TotalRequests > 0 {
		first, last, err := s.usageTimeBounds(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		summary.FirstUsage = first
		summary.LastUsage = last
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		byProvider, err := s.breakdown(gctx, tenantID, "provider")
		summary.ByProvider = byProvider
		return err
	})
	g.Go(func() error {
		byModel, err := s.breakdown(gctx, tenantID, "model")
		summary.ByModel = byModel
		return err
	})
	g.Go(func() error {
		byCloud, err := s.breakdown(gctx, tenantID, "cloud_provider")
		summary.ByCloudProvider = byCloud
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.cache.SetTenantSummary(ctx, tenantID, summary)

	return summary, nil
}

func (s *Service) usageTimeBounds(ctx context.Context, tenantID string) (*time.Time, *time.Time, error) {
	var first, last models.TokenUsageRaw

	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("timestamp ASC").
		Select("timestamp").
		First(&first).Error
	if err != nil {
		return nil, nil, models.NewStorageError("failed to get first usage timestamp", err)
	}

	err = s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("timestamp DESC").
		Select("timestamp").
		First(&last).Error
	if err != nil {
		return nil, nil, models.NewStorageError("failed to get last usage timestamp", err)
	}

	return &first.Timestamp, &last.Timestamp, nil
}

// breakdown columns are fixed; the dimension name is never caller input.
func (s *Service) breakdown(ctx context.Context, tenantID, dimension string) (map[string]models.DimensionStats, error) {
	var rows []breakdownRow

	err := s.db.WithContext(ctx).
		Model(&models.TokenUsageRaw{}).
		Where("tenant_id = ?", tenantID).
		Select(
			dimension+" as dim",
			"COUNT(*) as requests",
			"COALESCE(SUM(total_tokens), 0) as tokens",
			"COALESCE(SUM(calculated_cost), 0) as cost",
		).
		Group(dimension).
		Scan(&rows).Error
	if err != nil {
		return nil, models.NewStorageError("failed to get usage breakdown by "+dimension, err)
	}

	breakdown := make(map[string]models.DimensionStats, len(rows))
	for _, row := range rows {
		breakdown[row.Key] = models.DimensionStats{
			Requests: row.Requests,
			Tokens:   row.Tokens,
			Cost:     row.Cost,
		}
	}

	return breakdown, nil
}

// DailySummary returns daily summary rows for a tenant, newest first,
// defaulting to the trailing 30 days ending today. The cost/token
// rollup is computed over the returned rows, not re-queried.
func (s *Service) DailySummary(ctx context.Context, tenantID string, startDate, endDate *time.Time) (*models.DailySummaryResponse, error) {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	if endDate != nil {
		end = endDate.UTC().Truncate(24 * time.Hour)
	}
	start := end.AddDate(0, 0, -defaultDailyWindowDays)
	if startDate != nil {
		start = startDate.UTC().Truncate(24 * time.Hour)
	}

	var items []models.TenantDailySummary
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("date >= ? AND date <= ?", start, end).
		Order("date DESC").
		Find(&items).Error
	if err != nil {
		return nil, models.NewStorageError("failed to get daily summary", err)
	}

	resp := &models.DailySummaryResponse{
		TenantID:  tenantID,
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		Items:     items,
		TotalCost: decimal.Zero,
	}
	for _, item := range items {
		resp.TotalCost = resp.TotalCost.Add(item.TotalCost)
		resp.TotalTokens += item.TotalTokens
	}

	return resp, nil
}

// MonthlySummary returns monthly summary rows for a tenant, newest
// first, optionally filtered by year and month (zero means no filter).
func (s *Service) MonthlySummary(ctx context.Context, tenantID string, year, month int) (*models.MonthlySummaryResponse, error) {
	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if year > 0 {
		query = query.Where("year = ?", year)
	}
	if month > 0 {
		query = query.Where("month = ?", month)
	}

	var items []models.TenantMonthlySummary
	err := query.Order("year DESC, month DESC").Find(&items).Error
	if err != nil {
		return nil, models.NewStorageError("failed to get monthly summary", err)
	}

	resp := &models.MonthlySummaryResponse{
		TenantID:  tenantID,
		Items:     items,
		TotalCost: decimal.Zero,
	}
	for _, item := range items {
		resp.TotalCost = resp.TotalCost.Add(item.TotalCost)
		resp.TotalTokens += item.TotalTokens
	}

	return resp, nil
}

// RawUsage returns raw usage events for a tenant, newest first.
func (s *Service) RawUsage(ctx context.Context, tenantID string, startTime, endTime *time.Time, limit, offset int) ([]models.TokenUsageRaw, error) {
	if limit <= 0 || limit > defaultRawLimit {
		limit = defaultRawLimit
	}

	query := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if startTime != nil {
		query = query.Where("timestamp >= ?", *startTime)
	}
	if endTime != nil {
		query = query.Where("timestamp <= ?", *endTime)
	}

	var events []models.TokenUsageRaw
	err := query.
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	if err != nil {
		return nil, models.NewStorageError("failed to get raw usage", err)
	}

	return events, nil
}
