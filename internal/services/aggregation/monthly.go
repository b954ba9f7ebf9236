package aggregation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MonthlyJob rolls daily summaries up into per-month rows. It reads
// tenant_daily_summary only, never token_usage_raw, so monthly numbers
// always reconcile with the daily ones they came from.
type MonthlyJob struct {
	db *gorm.DB
}

func NewMonthlyJob(db *gorm.DB) *MonthlyJob {
	return &MonthlyJob{db: db}
}

type monthlyKey struct {
	tenantID string
	provider string
	model    string
}

type monthlyBucket struct {
	requests         int64
	promptTokens     int64
	completionTokens int64
	totalTokens      int64
	cost             decimal.Decimal
}

// Run aggregates one calendar month of daily summaries. Zero year and
// month mean the previous month (so a January run targets December of
// the prior year). The job refuses to run while any day of the month
// that has raw events is still missing its daily summary, because a
// rollup over partial dailies would silently under-bill.
func (j *MonthlyJob) Run(ctx context.Context, year, month int) (int, error) {
	if year == 0 || month == 0 {
		now := time.Now().UTC()
		firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		prev := firstOfMonth.AddDate(0, 0, -1)
		year = prev.Year()
		month = int(prev.Month())
	}
	if month < 1 || month > 12 {
		return 0, models.NewValidationError("month", "month must be between 1 and 12")
	}

	firstDay := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := firstDay.AddDate(0, 1, 0)

	fiberlog.Infof("Starting monthly aggregation for %04d-%02d", year, month)

	if err := j.verifyDailyCoverage(ctx, firstDay, nextMonth); err != nil {
		return 0, err
	}

	var dailies []models.TenantDailySummary
	err := j.db.WithContext(ctx).
		Where("date >= ? AND date < ?", firstDay, nextMonth).
		Find(&dailies).Error
	if err != nil {
		return 0, models.NewAggregationError(
			fmt.Sprintf("failed to query daily summaries for %04d-%02d", year, month), err)
	}

	if len(dailies) == 0 {
		fiberlog.Infof("No daily summaries to aggregate for %04d-%02d", year, month)
		return 0, nil
	}

	// The cloud provider dimension collapses here: the monthly grain is
	// (tenant, provider, model).
	buckets := make(map[monthlyKey]*monthlyBucket)
	order := make([]monthlyKey, 0)
	for _, daily := range dailies {
		key := monthlyKey{
			tenantID: daily.TenantID,
			provider: daily.Provider,
			model:    daily.Model,
		}

		bucket := buckets[key]
		if bucket == nil {
			bucket = &monthlyBucket{cost: decimal.Zero}
			buckets[key] = bucket
			order = append(order, key)
		}

		bucket.requests += daily.TotalRequests
		bucket.promptTokens += daily.TotalPromptTokens
		bucket.completionTokens += daily.TotalCompletionTokens
		bucket.totalTokens += daily.TotalTokens
		bucket.cost = bucket.cost.Add(daily.TotalCost)
	}

	err = j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range order {
			bucket := buckets[key]

			row := models.TenantMonthlySummary{
				ID:                    uuid.New().String(),
				TenantID:              key.tenantID,
				Year:                  year,
				Month:                 month,
				Provider:              key.provider,
				Model:                 key.model,
				TotalRequests:         bucket.requests,
				TotalPromptTokens:     bucket.promptTokens,
				TotalCompletionTokens: bucket.completionTokens,
				TotalTokens:           bucket.totalTokens,
				TotalCost:             bucket.cost,
			}

			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "tenant_id"},
					{Name: "year"},
					{Name: "month"},
					{Name: "provider"},
					{Name: "model"},
				},
				DoUpdates: clause.AssignmentColumns([]string{
					"total_requests",
					"total_prompt_tokens",
					"total_completion_tokens",
					"total_tokens",
					"total_cost",
					"updated_at",
				}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("failed to upsert monthly summary for tenant %s: %w", key.tenantID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, models.NewAggregationError(
			fmt.Sprintf("monthly aggregation failed for %04d-%02d", year, month), err)
	}

	fiberlog.Infof("Monthly aggregation completed for %04d-%02d: %d rows", year, month, len(order))
	return len(order), nil
}

// verifyDailyCoverage checks, day by day, that every day of the month
// carrying raw events also carries daily summary rows. One indexed
// count per day keeps this portable across dialects.
func (j *MonthlyJob) verifyDailyCoverage(ctx context.Context, firstDay, nextMonth time.Time) error {
	var missing []string

	for day := firstDay; day.Before(nextMonth); day = day.AddDate(0, 0, 1) {
		var rawCount int64
		err := j.db.WithContext(ctx).
			Model(&models.TokenUsageRaw{}).
			Where("timestamp >= ? AND timestamp < ?", day, day.AddDate(0, 0, 1)).
			Count(&rawCount).Error
		if err != nil {
			return models.NewAggregationError("failed to check raw event coverage", err)
		}
		if rawCount == 0 {
			continue
		}

		var dailyCount int64
		err = j.db.WithContext(ctx).
			Model(&models.TenantDailySummary{}).
			Where("date = ?", day).
			Count(&dailyCount).Error
		if err != nil {
			return models.NewAggregationError("failed to check daily summary coverage", err)
		}
		if dailyCount == 0 {
			missing = append(missing, day.Format("2006-01-02"))
		}
	}

	if len(missing) > 0 {
		return models.NewAggregationError(
			fmt.Sprintf("daily summaries missing for dates with usage: %s", strings.Join(missing, ", ")), nil)
	}
	return nil
}
