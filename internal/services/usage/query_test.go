package usage

import (
	"context"
	"testing"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func recordTestEvents(t *testing.T, svc *Service) {
	t.Helper()

	events := []models.UsageEvent{
		{
			TenantID: "t1", Provider: "bedrock", Model: "anthropic.claude-3-sonnet",
			PromptTokens: 1000, CompletionTokens: 500,
			Timestamp: "2024-01-15T10:00:00Z",
			Host:      &models.HostMetadata{CloudProvider: models.CloudProviderAWS},
		},
		{
			TenantID: "t1", Provider: "azure_openai", Model: "gpt-4o",
			PromptTokens: 2000, CompletionTokens: 1000,
			Timestamp: "2024-01-16T11:00:00Z",
			Host:      &models.HostMetadata{CloudProvider: models.CloudProviderAzure},
		},
		{
			TenantID: "t2", Provider: "gemini", Model: "gemini-1.5-pro",
			PromptTokens: 100, CompletionTokens: 50,
			Timestamp: "2024-01-15T12:00:00Z",
		},
	}

	for i, event := range events {
		if _, err := svc.RecordUsage(context.Background(), event); err != nil {
			t.Fatalf("failed to record event %d: %v", i, err)
		}
	}
}

func TestTenantSummary(t *testing.T) {
	svc := testService(t)
	recordTestEvents(t, svc)

	summary, err := svc.TenantSummary(context.Background(), "t1")
	if err != nil {
		t.Fatalf("TenantSummary failed: %v", err)
	}

	if summary.TotalRequests != 2 {
		t.Errorf("total requests = %d, want 2", summary.TotalRequests)
	}
	if summary.TotalTokens != 4500 {
		t.Errorf("total tokens = %d, want 4500", summary.TotalTokens)
	}
	if len(summary.ByProvider) != 2 {
		t.Errorf("provider breakdown has %d entries, want 2", len(summary.ByProvider))
	}
	if stats, ok := summary.ByProvider["bedrock"]; !ok || stats.Requests != 1 || stats.Tokens != 1500 {
		t.Errorf("bedrock breakdown = %+v", stats)
	}
	if _, ok := summary.ByModel["gpt-4o"]; !ok {
		t.Error("model breakdown missing gpt-4o")
	}
	if _, ok := summary.ByCloudProvider[models.CloudProviderAzure]; !ok {
		t.Error("cloud breakdown missing azure")
	}

	if summary.FirstUsage == nil || summary.LastUsage == nil {
		t.Fatal("expected usage time bounds")
	}
	if !summary.FirstUsage.Equal(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("first usage = %v", summary.FirstUsage)
	}
	if !summary.LastUsage.Equal(time.Date(2024, 1, 16, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("last usage = %v", summary.LastUsage)
	}
}

func TestTenantSummaryEmpty(t *testing.T) {
	svc := testService(t)

	summary, err := svc.TenantSummary(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("TenantSummary failed: %v", err)
	}
	if summary.TotalRequests != 0 || summary.TotalTokens != 0 {
		t.Errorf("expected zero totals, got %+v", summary)
	}
	if summary.FirstUsage != nil || summary.LastUsage != nil {
		t.Error("expected nil time bounds for an unknown tenant")
	}
}

func insertDaily(t *testing.T, svc *Service, tenantID string, date time.Time, cost string, tokens int64) {
	t.Helper()

	row := models.TenantDailySummary{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Date:          date,
		Provider:      "bedrock",
		Model:         "anthropic.claude-3-sonnet",
		CloudProvider: models.CloudProviderUnknown,
		TotalRequests: 1,
		TotalTokens:   tokens,
		TotalCost:     decimal.RequireFromString(cost),
	}
	if err := svc.db.Create(&row).Error; err != nil {
		t.Fatalf("failed to insert daily summary: %v", err)
	}
}

func TestDailySummaryWindowAndRollup(t *testing.T) {
	svc := testService(t)

	inWindow := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	alsoIn := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	outOfWindow := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)

	insertDaily(t, svc, "t1", inWindow, "0.005", 1500)
	insertDaily(t, svc, "t1", alsoIn, "0.010", 3000)
	insertDaily(t, svc, "t1", outOfWindow, "99", 99)
	insertDaily(t, svc, "t2", inWindow, "0.5", 10)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	resp, err := svc.DailySummary(context.Background(), "t1", &start, &end)
	if err != nil {
		t.Fatalf("DailySummary failed: %v", err)
	}

	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 rows in window, got %d", len(resp.Items))
	}
	// Newest first.
	if !resp.Items[0].Date.After(resp.Items[1].Date) {
		t.Errorf("rows not ordered newest first: %v, %v", resp.Items[0].Date, resp.Items[1].Date)
	}
	if got := resp.TotalCost.String(); got != "0.015" {
		t.Errorf("total cost rollup = %s, want 0.015", got)
	}
	if resp.TotalTokens != 4500 {
		t.Errorf("total tokens rollup = %d, want 4500", resp.TotalTokens)
	}
}

func TestMonthlySummaryFilters(t *testing.T) {
	svc := testService(t)

	rows := []models.TenantMonthlySummary{
		{ID: uuid.New().String(), TenantID: "t1", Year: 2024, Month: 1, Provider: "bedrock", Model: "m", TotalTokens: 100, TotalCost: decimal.RequireFromString("0.1")},
		{ID: uuid.New().String(), TenantID: "t1", Year: 2024, Month: 2, Provider: "bedrock", Model: "m", TotalTokens: 200, TotalCost: decimal.RequireFromString("0.2")},
		{ID: uuid.New().String(), TenantID: "t1", Year: 2023, Month: 12, Provider: "bedrock", Model: "m", TotalTokens: 300, TotalCost: decimal.RequireFromString("0.3")},
	}
	for i := range rows {
		if err := svc.db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("failed to insert monthly summary: %v", err)
		}
	}

	resp, err := svc.MonthlySummary(context.Background(), "t1", 0, 0)
	if err != nil {
		t.Fatalf("MonthlySummary failed: %v", err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(resp.Items))
	}
	if resp.Items[0].Year != 2024 || resp.Items[0].Month != 2 {
		t.Errorf("first row = %d-%d, want 2024-2", resp.Items[0].Year, resp.Items[0].Month)
	}
	if got := resp.TotalCost.String(); got != "0.6" {
		t.Errorf("total cost = %s, want 0.6", got)
	}

	filtered, err := svc.MonthlySummary(context.Background(), "t1", 2024, 1)
	if err != nil {
		t.Fatalf("MonthlySummary filtered failed: %v", err)
	}
	if len(filtered.Items) != 1 || filtered.Items[0].Month != 1 {
		t.Errorf("filtered rows = %+v", filtered.Items)
	}
}

func TestRawUsage(t *testing.T) {
	svc := testService(t)
	recordTestEvents(t, svc)

	events, err := svc.RawUsage(context.Background(), "t1", nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("RawUsage failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[0].Timestamp.After(events[1].Timestamp) {
		t.Error("events not ordered newest first")
	}

	// Time filter keeps only the later event.
	cutoff := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	later, err := svc.RawUsage(context.Background(), "t1", &cutoff, nil, 10, 0)
	if err != nil {
		t.Fatalf("RawUsage filtered failed: %v", err)
	}
	if len(later) != 1 || later[0].Model != "gpt-4o" {
		t.Errorf("filtered events = %+v", later)
	}
}
