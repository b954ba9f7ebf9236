package api

import (
	"strconv"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/services/usage"

	"github.com/gofiber/fiber/v2"
)

type TenantHandler struct {
	usageService *usage.Service
}

func NewTenantHandler(usageService *usage.Service) *TenantHandler {
	return &TenantHandler{
		usageService: usageService,
	}
}

func (h *TenantHandler) RegisterRoutes(app *fiber.App, basePath string) {
	group := app.Group(basePath)
	group.Get("/:tenantId/summary", h.GetSummary)
	group.Get("/:tenantId/daily", h.GetDailySummary)
	group.Get("/:tenantId/monthly", h.GetMonthlySummary)
}

func (h *TenantHandler) GetSummary(c *fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Tenant id is required",
		})
	}

	summary, err := h.usageService.TenantSummary(c.Context(), tenantID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(summary)
}

func (h *TenantHandler) GetDailySummary(c *fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Tenant id is required",
		})
	}

	var startDate, endDate *time.Time
	if startStr := c.Query("startDate"); startStr != "" {
		parsed, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid start date format, expected YYYY-MM-DD",
			})
		}
		startDate = &parsed
	}
	if endStr := c.Query("endDate"); endStr != "" {
		parsed, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid end date format, expected YYYY-MM-DD",
			})
		}
		endDate = &parsed
	}

	summary, err := h.usageService.DailySummary(c.Context(), tenantID, startDate, endDate)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(summary)
}

func (h *TenantHandler) GetMonthlySummary(c *fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Tenant id is required",
		})
	}

	year, _ := strconv.Atoi(c.Query("year", "0"))
	month, _ := strconv.Atoi(c.Query("month", "0"))
	if month < 0 || month > 12 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Month must be between 1 and 12",
		})
	}

	summary, err := h.usageService.MonthlySummary(c.Context(), tenantID, year, month)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(summary)
}
