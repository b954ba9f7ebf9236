package aggregation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type dailyRow struct {
	tenantID      string
	date          time.Time
	provider      string
	model         string
	cloudProvider string
	requests      int64
	tokens        int64
	cost          string
}

func insertDailySummary(t *testing.T, db *gorm.DB, r dailyRow) {
	t.Helper()

	if r.cloudProvider == "" {
		r.cloudProvider = models.CloudProviderUnknown
	}
	row := models.TenantDailySummary{
		ID:                    uuid.New().String(),
		TenantID:              r.tenantID,
		Date:                  r.date,
		Provider:              r.provider,
		Model:                 r.model,
		CloudProvider:         r.cloudProvider,
		TotalRequests:         r.requests,
		TotalPromptTokens:     r.tokens * 2 / 3,
		TotalCompletionTokens: r.tokens / 3,
		TotalTokens:           r.tokens,
		TotalCost:             decimal.RequireFromString(r.cost),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to insert daily summary: %v", err)
	}
}

func TestMonthlyRunRollsUpDailies(t *testing.T) {
	db := testDB(t)
	job := NewMonthlyJob(db)

	// Two cloud providers collapse into one monthly row per
	// (tenant, provider, model).
	insertDailySummary(t, db, dailyRow{tenantID: "t1", date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), provider: "bedrock", model: "claude", cloudProvider: "aws", requests: 2, tokens: 3000, cost: "0.010"})
	insertDailySummary(t, db, dailyRow{tenantID: "t1", date: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), provider: "bedrock", model: "claude", cloudProvider: "on-prem", requests: 1, tokens: 1500, cost: "0.005"})
	insertDailySummary(t, db, dailyRow{tenantID: "t1", date: time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC), provider: "gemini", model: "gemini-1.5-pro", requests: 1, tokens: 100, cost: "0.0001"})
	// Next month, must be excluded.
	insertDailySummary(t, db, dailyRow{tenantID: "t1", date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), provider: "bedrock", model: "claude", requests: 9, tokens: 9, cost: "9"})

	rows, err := job.Run(context.Background(), 2024, 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rows != 2 {
		t.Errorf("wrote %d rows, want 2", rows)
	}

	var bedrock models.TenantMonthlySummary
	err = db.Where("tenant_id = ? AND provider = ?", "t1", "bedrock").First(&bedrock).Error
	if err != nil {
		t.Fatalf("failed to read bedrock row: %v", err)
	}
	if bedrock.Year != 2024 || bedrock.Month != 1 {
		t.Errorf("period = %d-%d, want 2024-1", bedrock.Year, bedrock.Month)
	}
	if bedrock.TotalRequests != 3 || bedrock.TotalTokens != 4500 {
		t.Errorf("bedrock rollup = %d requests, %d tokens", bedrock.TotalRequests, bedrock.TotalTokens)
	}
	if got := bedrock.TotalCost.String(); got != "0.015" {
		t.Errorf("bedrock cost = %s, want 0.015", got)
	}
}

func TestMonthlyRunIdempotent(t *testing.T) {
	db := testDB(t)
	job := NewMonthlyJob(db)

	insertDailySummary(t, db, dailyRow{tenantID: "t1", date: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), provider: "bedrock", model: "claude", requests: 1, tokens: 100, cost: "0.001"})

	if _, err := job.Run(context.Background(), 2024, 1); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if _, err := job.Run(context.Background(), 2024, 1); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	var count int64
	if err := db.Model(&models.TenantMonthlySummary{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count monthly rows: %v", err)
	}
	if count != 1 {
		t.Errorf("found %d monthly rows, want 1", count)
	}
}

func TestMonthlyRunCoveragePrecondition(t *testing.T) {
	db := testDB(t)
	job := NewMonthlyJob(db)

	// Raw events exist on the 15th but the daily job never ran for it.
	insertRaw(t, db, rawEvent{tenantID: "t1", provider: "bedrock", model: "claude", prompt: 100, completion: 50, cost: "0.001", timestamp: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)})

	_, err := job.Run(context.Background(), 2024, 1)
	if err == nil {
		t.Fatal("expected a coverage error")
	}
	if !strings.Contains(err.Error(), "2024-01-15") {
		t.Errorf("error should name the missing date, got: %v", err)
	}

	var count int64
	if err := db.Model(&models.TenantMonthlySummary{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count monthly rows: %v", err)
	}
	if count != 0 {
		t.Errorf("coverage failure must not write rows, found %d", count)
	}

	// Once the daily job catches up, the monthly run succeeds.
	if _, err := NewDailyJob(db).Run(context.Background(), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("daily Run failed: %v", err)
	}
	if _, err := job.Run(context.Background(), 2024, 1); err != nil {
		t.Fatalf("monthly Run after catch-up failed: %v", err)
	}
}

func TestMonthlyRunEqualsDailyTotals(t *testing.T) {
	db := testDB(t)

	// Raw events across three days of one month, aggregated daily then
	// monthly. The monthly totals must reconcile exactly.
	for day := 10; day <= 12; day++ {
		ts := time.Date(2024, 3, day, 9, 0, 0, 0, time.UTC)
		insertRaw(t, db, rawEvent{tenantID: "t1", provider: "bedrock", model: "claude", prompt: 1000, completion: 500, cost: "0.0123456789", timestamp: ts})
	}

	daily := NewDailyJob(db)
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	if _, err := daily.Backfill(context.Background(), start, end); err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}

	if _, err := NewMonthlyJob(db).Run(context.Background(), 2024, 3); err != nil {
		t.Fatalf("monthly Run failed: %v", err)
	}

	var monthly models.TenantMonthlySummary
	if err := db.First(&monthly).Error; err != nil {
		t.Fatalf("failed to read monthly row: %v", err)
	}
	if monthly.TotalRequests != 3 || monthly.TotalTokens != 4500 {
		t.Errorf("monthly rollup = %d requests, %d tokens", monthly.TotalRequests, monthly.TotalTokens)
	}
	if got := monthly.TotalCost.String(); got != "0.0370370367" {
		t.Errorf("monthly cost = %s, want 0.0370370367", got)
	}
}

func TestMonthlyRunInvalidMonth(t *testing.T) {
	job := NewMonthlyJob(testDB(t))

	if _, err := job.Run(context.Background(), 2024, 13); err == nil {
		t.Fatal("expected an error for month 13")
	}
}
