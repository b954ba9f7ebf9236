package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/config"
	"github.com/matthiasponsi/token-trackr/internal/services/aggregation"
	"github.com/matthiasponsi/token-trackr/internal/services/database"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/spf13/pflag"
)

// aggregator runs a single aggregation job and exits. Intended for cron
// or one-off operational runs next to the API server's built-in
// scheduler.
func main() {
	var (
		configPath = pflag.String("config", "config.yaml", "path to configuration file")
		job        = pflag.String("job", "daily", "job to run: daily, monthly, backfill or report")
		date       = pflag.String("date", "", "target date for the daily job (YYYY-MM-DD, default yesterday)")
		startDate  = pflag.String("start", "", "backfill range start (YYYY-MM-DD)")
		endDate    = pflag.String("end", "", "backfill range end (YYYY-MM-DD)")
		year       = pflag.Int("year", 0, "target year for the monthly job or report (default previous month)")
		month      = pflag.Int("month", 0, "target month for the monthly job or report (default previous month)")
		tenantID   = pflag.String("tenant", "", "restrict the report to one tenant")
	)
	pflag.Parse()

	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fiberlog.Fatalf("Invalid configuration: %v", err)
	}

	db, err := database.New(*cfg.Database)
	if err != nil {
		fiberlog.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}()

	if err := db.AutoMigrate(); err != nil {
		fiberlog.Fatalf("Failed to run database migrations: %v", err)
	}

	ctx := context.Background()

	switch *job {
	case "daily":
		var targetDate time.Time
		if *date != "" {
			targetDate, err = time.Parse("2006-01-02", *date)
			if err != nil {
				fiberlog.Fatalf("Invalid -date: %v", err)
			}
		}
		rows, err := aggregation.NewDailyJob(db.DB).Run(ctx, targetDate)
		if err != nil {
			fiberlog.Fatalf("Daily aggregation failed: %v", err)
		}
		fmt.Printf("Daily aggregation wrote %d rows\n", rows)

	case "monthly":
		rows, err := aggregation.NewMonthlyJob(db.DB).Run(ctx, *year, *month)
		if err != nil {
			fiberlog.Fatalf("Monthly aggregation failed: %v", err)
		}
		fmt.Printf("Monthly aggregation wrote %d rows\n", rows)

	case "backfill":
		if *startDate == "" || *endDate == "" {
			fiberlog.Fatal("Backfill requires -start and -end")
		}
		start, err := time.Parse("2006-01-02", *startDate)
		if err != nil {
			fiberlog.Fatalf("Invalid -start: %v", err)
		}
		end, err := time.Parse("2006-01-02", *endDate)
		if err != nil {
			fiberlog.Fatalf("Invalid -end: %v", err)
		}
		rows, err := aggregation.NewDailyJob(db.DB).Backfill(ctx, start, end)
		if err != nil {
			fiberlog.Errorf("Backfill completed with failures: %v", err)
			fmt.Printf("Backfill wrote %d rows before failing\n", rows)
			os.Exit(1)
		}
		fmt.Printf("Backfill wrote %d rows\n", rows)

	case "report":
		reportYear, reportMonth := *year, *month
		if reportYear == 0 || reportMonth == 0 {
			now := time.Now().UTC()
			prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
			reportYear = prev.Year()
			reportMonth = int(prev.Month())
		}
		reportJob, err := aggregation.NewReportJob(db.DB, cfg.Reports.OutputDir)
		if err != nil {
			fiberlog.Fatalf("Failed to initialize report job: %v", err)
		}
		path, err := reportJob.GenerateMonthlyReport(ctx, reportYear, reportMonth, *tenantID)
		if err != nil {
			fiberlog.Fatalf("Report generation failed: %v", err)
		}
		fmt.Printf("Report written to %s\n", path)

	default:
		fiberlog.Fatalf("Unknown job %q: expected daily, monthly, backfill or report", *job)
	}
}
