package api

import (
	"fmt"

	"github.com/matthiasponsi/token-trackr/internal/models"
	"github.com/matthiasponsi/token-trackr/internal/services/pricing"

	"github.com/gofiber/fiber/v2"
)

type PricingHandler struct {
	engine    *pricing.Engine
	overrides *pricing.OverrideStore
}

func NewPricingHandler(engine *pricing.Engine, overrides *pricing.OverrideStore) *PricingHandler {
	return &PricingHandler{
		engine:    engine,
		overrides: overrides,
	}
}

func (h *PricingHandler) RegisterRoutes(app *fiber.App, basePath string) {
	app.Get(basePath+"/providers/:provider/models", h.GetProviderModels)
	app.Post(basePath+"/pricing/reload", h.ReloadPricing)
	app.Put(basePath+"/pricing/overrides", h.UpsertOverride)
}

var knownProviders = map[string]bool{
	models.ProviderBedrock:     true,
	models.ProviderAzureOpenAI: true,
	models.ProviderGemini:      true,
}

func (h *PricingHandler) GetProviderModels(c *fiber.Ctx) error {
	provider := pricing.NormalizeProvider(c.Params("provider"))
	if !knownProviders[provider] {
		return respondError(c, models.NewNotFoundError(fmt.Sprintf("unknown provider: %s", c.Params("provider"))))
	}

	return c.JSON(models.ProviderModelsResponse{
		Provider: provider,
		Models:   h.engine.ProviderModels(provider),
	})
}

func (h *PricingHandler) ReloadPricing(c *fiber.Ctx) error {
	if err := h.engine.Reload(); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"status": "reloaded",
	})
}

func (h *PricingHandler) UpsertOverride(c *fiber.Ctx) error {
	var req models.PricingOverrideRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	override, err := h.overrides.Upsert(c.Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	// Fold the new override set into the live pricing table so pricing
	// changes take effect without a restart.
	active, err := h.overrides.Active(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	h.engine.SetOverrides(active)

	return c.JSON(override)
}
