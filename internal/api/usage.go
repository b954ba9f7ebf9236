package api

import (
	"strconv"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/models"
	"github.com/matthiasponsi/token-trackr/internal/services/usage"

	"github.com/gofiber/fiber/v2"
)

type UsageHandler struct {
	usageService *usage.Service
	worker       *usage.Worker
}

// NewUsageHandler creates the usage ingestion handler. worker may be
// nil, in which case async recording is unavailable.
func NewUsageHandler(usageService *usage.Service, worker *usage.Worker) *UsageHandler {
	return &UsageHandler{
		usageService: usageService,
		worker:       worker,
	}
}

func (h *UsageHandler) RegisterRoutes(app *fiber.App, basePath string) {
	group := app.Group(basePath)
	group.Post("/", h.RecordUsage)
	group.Post("/batch", h.RecordBatch)
	group.Get("/:tenantId/raw", h.GetRawUsage)
}

func (h *UsageHandler) RecordUsage(c *fiber.Ctx) error {
	var event models.UsageEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	// Fire-and-forget ingestion for latency-sensitive callers. The
	// event is validated on the worker, not here.
	if c.QueryBool("async") && h.worker != nil {
		h.worker.Submit(event, c.Get(fiber.HeaderXRequestID))
		return c.SendStatus(fiber.StatusAccepted)
	}

	record, err := h.usageService.RecordUsage(c.Context(), event)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record)
}

func (h *UsageHandler) RecordBatch(c *fiber.Ctx) error {
	var events []models.UsageEvent
	if err := c.BodyParser(&events); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	result, err := h.usageService.RecordBatch(c.Context(), events)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *UsageHandler) GetRawUsage(c *fiber.Ctx) error {
	tenantID := c.Params("tenantId")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Tenant id is required",
		})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	var startTime, endTime *time.Time
	if startStr := c.Query("startTime"); startStr != "" {
		parsed, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid start time format",
			})
		}
		startTime = &parsed
	}
	if endStr := c.Query("endTime"); endStr != "" {
		parsed, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid end time format",
			})
		}
		endTime = &parsed
	}

	records, err := h.usageService.RawUsage(c.Context(), tenantID, startTime, endTime, limit, offset)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(records)
}
