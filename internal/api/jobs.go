package api

import (
	"strconv"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/services/aggregation"

	"github.com/gofiber/fiber/v2"
)

// JobHandler exposes manual triggers for the aggregation jobs, for
// operators re-running a day after a fix or catching up after downtime.
type JobHandler struct {
	daily   *aggregation.DailyJob
	monthly *aggregation.MonthlyJob
}

func NewJobHandler(daily *aggregation.DailyJob, monthly *aggregation.MonthlyJob) *JobHandler {
	return &JobHandler{
		daily:   daily,
		monthly: monthly,
	}
}

func (h *JobHandler) RegisterRoutes(app *fiber.App, basePath string) {
	group := app.Group(basePath)
	group.Post("/daily", h.RunDaily)
	group.Post("/monthly", h.RunMonthly)
	group.Post("/backfill", h.RunBackfill)
}

func (h *JobHandler) RunDaily(c *fiber.Ctx) error {
	var targetDate time.Time
	if dateStr := c.Query("date"); dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid date format, expected YYYY-MM-DD",
			})
		}
		targetDate = parsed
	}

	rows, err := h.daily.Run(c.Context(), targetDate)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"status": "completed",
		"rows":   rows,
	})
}

func (h *JobHandler) RunMonthly(c *fiber.Ctx) error {
	year, _ := strconv.Atoi(c.Query("year", "0"))
	month, _ := strconv.Atoi(c.Query("month", "0"))

	rows, err := h.monthly.Run(c.Context(), year, month)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"status": "completed",
		"rows":   rows,
	})
}

func (h *JobHandler) RunBackfill(c *fiber.Ctx) error {
	startStr := c.Query("startDate")
	endStr := c.Query("endDate")
	if startStr == "" || endStr == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "startDate and endDate are required",
		})
	}

	startDate, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid start date format, expected YYYY-MM-DD",
		})
	}
	endDate, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid end date format, expected YYYY-MM-DD",
		})
	}

	rows, err := h.daily.Backfill(c.Context(), startDate, endDate)
	if err != nil {
		// Partial failures still return the rows that were written.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "partial",
			"rows":   rows,
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status": "completed",
		"rows":   rows,
	})
}
