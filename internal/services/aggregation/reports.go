package aggregation

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const costDecimalPlaces = 10

// ReportJob writes CSV billing reports from the monthly summary table.
type ReportJob struct {
	db        *gorm.DB
	outputDir string
}

func NewReportJob(db *gorm.DB, outputDir string) (*ReportJob, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, models.NewConfigError(fmt.Sprintf("failed to create report directory %s", outputDir), err)
	}
	return &ReportJob{db: db, outputDir: outputDir}, nil
}

var reportHeader = []string{
	"Tenant ID", "Year", "Month", "Provider", "Model",
	"Total Requests", "Prompt Tokens", "Completion Tokens", "Total Tokens", "Total Cost (USD)",
}

// GenerateMonthlyReport writes one billing month to CSV. An empty
// tenantID covers all tenants and appends a grand-total row. Returns
// the path of the written file.
func (j *ReportJob) GenerateMonthlyReport(ctx context.Context, year, month int, tenantID string) (string, error) {
	if month < 1 || month > 12 {
		return "", models.NewValidationError("month", "month must be between 1 and 12")
	}

	query := j.db.WithContext(ctx).
		Where("year = ? AND month = ?", year, month).
		Order("tenant_id ASC, provider ASC, model ASC")
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}

	var rows []models.TenantMonthlySummary
	if err := query.Find(&rows).Error; err != nil {
		return "", models.NewStorageError("failed to query monthly summaries for report", err)
	}

	scope := "all"
	if tenantID != "" {
		scope = tenantID
	}
	filename := fmt.Sprintf("billing_%s_%04d_%02d_%s.csv", scope, year, month, time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(j.outputDir, filename)

	if err := j.writeReport(path, rows, tenantID == ""); err != nil {
		return "", err
	}

	fiberlog.Infof("Billing report written: %s (%d rows)", path, len(rows))
	return path, nil
}

// GenerateTenantSummaryReport writes a single tenant's monthly rows
// across an inclusive month range.
func (j *ReportJob) GenerateTenantSummaryReport(ctx context.Context, tenantID string, startYear, startMonth, endYear, endMonth int) (string, error) {
	if tenantID == "" {
		return "", models.NewValidationError("tenant_id", "tenant_id is required")
	}
	start := startYear*100 + startMonth
	end := endYear*100 + endMonth
	if start > end {
		return "", models.NewValidationError("start", "start month must not be after end month")
	}

	var rows []models.TenantMonthlySummary
	err := j.db.WithContext(ctx).
		Where("tenant_id = ? AND (year * 100 + month) BETWEEN ? AND ?", tenantID, start, end).
		Order("year ASC, month ASC, provider ASC, model ASC").
		Find(&rows).Error
	if err != nil {
		return "", models.NewStorageError("failed to query monthly summaries for tenant report", err)
	}

	filename := fmt.Sprintf("summary_%s_%04d%02d_%04d%02d_%s.csv",
		tenantID, startYear, startMonth, endYear, endMonth, time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(j.outputDir, filename)

	if err := j.writeReport(path, rows, false); err != nil {
		return "", err
	}

	fiberlog.Infof("Tenant summary report written: %s (%d rows)", path, len(rows))
	return path, nil
}

func (j *ReportJob) writeReport(path string, rows []models.TenantMonthlySummary, withTotal bool) error {
	file, err := os.Create(path)
	if err != nil {
		return models.NewStorageError(fmt.Sprintf("failed to create report file %s", path), err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(reportHeader); err != nil {
		return models.NewStorageError("failed to write report header", err)
	}

	totalCost := decimal.Zero
	var totalTokens int64
	for _, row := range rows {
		record := []string{
			row.TenantID,
			strconv.Itoa(row.Year),
			strconv.Itoa(row.Month),
			row.Provider,
			row.Model,
			strconv.FormatInt(row.TotalRequests, 10),
			strconv.FormatInt(row.TotalPromptTokens, 10),
			strconv.FormatInt(row.TotalCompletionTokens, 10),
			strconv.FormatInt(row.TotalTokens, 10),
			row.TotalCost.StringFixed(costDecimalPlaces),
		}
		if err := writer.Write(record); err != nil {
			return models.NewStorageError("failed to write report row", err)
		}
		totalCost = totalCost.Add(row.TotalCost)
		totalTokens += row.TotalTokens
	}

	if withTotal {
		total := []string{
			"TOTAL", "", "", "", "", "", "", "",
			strconv.FormatInt(totalTokens, 10),
			totalCost.StringFixed(costDecimalPlaces),
		}
		if err := writer.Write(total); err != nil {
			return models.NewStorageError("failed to write report total row", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return models.NewStorageError("failed to flush report", err)
	}
	return nil
}
