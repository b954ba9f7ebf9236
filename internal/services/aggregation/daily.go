package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyJob rolls raw usage events up into per-day summaries. Re-running
// a date overwrites the existing rows (full-overwrite upsert), so the
// job is idempotent and safely retryable.
type DailyJob struct {
	db *gorm.DB
}

func NewDailyJob(db *gorm.DB) *DailyJob {
	return &DailyJob{db: db}
}

type dailyKey struct {
	tenantID      string
	provider      string
	model         string
	cloudProvider string
}

type dailyBucket struct {
	requests         int64
	promptTokens     int64
	completionTokens int64
	totalTokens      int64
	cost             decimal.Decimal
	latencySum       int64
	latencyCount     int64
}

// Run aggregates all raw events whose event timestamp falls on
// targetDate (UTC calendar day) and upserts one summary row per
// (tenant, provider, model, cloud provider) partition. A zero
// targetDate means yesterday. Returns the number of rows written;
// a day with no events writes nothing.
func (j *DailyJob) Run(ctx context.Context, targetDate time.Time) (int, error) {
	if targetDate.IsZero() {
		targetDate = time.Now().UTC().AddDate(0, 0, -1)
	}
	day := truncateToDay(targetDate)
	nextDay := day.AddDate(0, 0, 1)

	fiberlog.Infof("Starting daily aggregation for %s", day.Format("2006-01-02"))

	var events []models.TokenUsageRaw
	err := j.db.WithContext(ctx).
		Select("tenant_id", "provider", "model", "cloud_provider",
			"prompt_tokens", "completion_tokens", "total_tokens",
			"calculated_cost", "latency_ms").
		Where("timestamp >= ? AND timestamp < ?", day, nextDay).
		Find(&events).Error
	if err != nil {
		return 0, models.NewAggregationError(
			fmt.Sprintf("failed to query raw events for %s", day.Format("2006-01-02")), err)
	}

	if len(events) == 0 {
		fiberlog.Infof("No usage data to aggregate for %s", day.Format("2006-01-02"))
		return 0, nil
	}

	// Summation uses exact decimal arithmetic in application code, the
	// same on every database dialect.
	buckets := make(map[dailyKey]*dailyBucket)
	order := make([]dailyKey, 0)
	for _, event := range events {
		key := dailyKey{
			tenantID:      event.TenantID,
			provider:      event.Provider,
			model:         event.Model,
			cloudProvider: event.CloudProvider,
		}

		bucket := buckets[key]
		if bucket == nil {
			bucket = &dailyBucket{cost: decimal.Zero}
			buckets[key] = bucket
			order = append(order, key)
		}

		bucket.requests++
		bucket.promptTokens += event.PromptTokens
		bucket.completionTokens += event.CompletionTokens
		bucket.totalTokens += event.TotalTokens
		bucket.cost = bucket.cost.Add(event.CalculatedCost)
		if event.LatencyMs != nil {
			bucket.latencySum += *event.LatencyMs
			bucket.latencyCount++
		}
	}

	// One transaction per day: a failed day never corrupts other days
	// in a backfill.
	err = j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range order {
			bucket := buckets[key]

			row := models.TenantDailySummary{
				ID:                    uuid.New().String(),
				TenantID:              key.tenantID,
				Date:                  day,
				Provider:              key.provider,
				Model:                 key.model,
				CloudProvider:         key.cloudProvider,
				TotalRequests:         bucket.requests,
				TotalPromptTokens:     bucket.promptTokens,
				TotalCompletionTokens: bucket.completionTokens,
				TotalTokens:           bucket.totalTokens,
				TotalCost:             bucket.cost,
			}
			if bucket.latencyCount > 0 {
				avg := bucket.latencySum / bucket.latencyCount
				row.AvgLatencyMs = &avg
			}

			// Overwrite, never add deltas: reruns must be idempotent.
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{
					{Name: "tenant_id"},
					{Name: "date"},
					{Name: "provider"},
					{Name: "model"},
					{Name: "cloud_provider"},
				},
				DoUpdates: clause.AssignmentColumns([]string{
					"total_requests",
					"total_prompt_tokens",
					"total_completion_tokens",
					"total_tokens",
					"total_cost",
					"avg_latency_ms",
					"updated_at",
				}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("failed to upsert daily summary for tenant %s: %w", key.tenantID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, models.NewAggregationError(
			fmt.Sprintf("daily aggregation failed for %s", day.Format("2006-01-02")), err)
	}

	fiberlog.Infof("Daily aggregation completed for %s: %d rows", day.Format("2006-01-02"), len(order))
	return len(order), nil
}

// Backfill runs the daily job once per calendar day in the inclusive
// range, sequentially. Days are independent: a failed day is logged and
// skipped while the remaining days still run, and completed days need
// not be redone after an interruption.
func (j *DailyJob) Backfill(ctx context.Context, startDate, endDate time.Time) (int, error) {
	start := truncateToDay(startDate)
	end := truncateToDay(endDate)
	if start.After(end) {
		return 0, models.NewValidationError("start_date", "start_date must not be after end_date")
	}

	total := 0
	var errs []error
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		count, err := j.Run(ctx, day)
		if err != nil {
			fiberlog.Errorf("Backfill failed for %s: %v", day.Format("2006-01-02"), err)
			errs = append(errs, err)
			continue
		}
		total += count
	}

	fiberlog.Infof("Backfill completed for %s..%s: %d rows, %d failed days",
		start.Format("2006-01-02"), end.Format("2006-01-02"), total, len(errs))
	return total, errors.Join(errs...)
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
