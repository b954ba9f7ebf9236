package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matthiasponsi/token-trackr/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OverrideStore persists runtime pricing overrides. Active rows take
// precedence over the pricing config file after Engine.SetOverrides.
type OverrideStore struct {
	db *gorm.DB
}

func NewOverrideStore(db *gorm.DB) *OverrideStore {
	return &OverrideStore{db: db}
}

// Active returns the override rows currently in effect.
func (s *OverrideStore) Active(ctx context.Context) ([]models.PricingOverride, error) {
	var rows []models.PricingOverride

	now := time.Now().UTC()
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("effective_from <= ?", now).
		Where("effective_to IS NULL OR effective_to >= ?", now).
		Order("provider, model, effective_from").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing overrides: %w", err)
	}

	return rows, nil
}

// Upsert writes an override row keyed on (provider, model,
// effective_from), overwriting prices on conflict.
func (s *OverrideStore) Upsert(ctx context.Context, req models.PricingOverrideRequest) (*models.PricingOverride, error) {
	if req.Provider == "" {
		return nil, models.NewValidationError("provider", "provider must not be empty")
	}
	if req.Model == "" {
		return nil, models.NewValidationError("model", "model must not be empty")
	}
	if req.InputPricePer1K.IsNegative() || req.OutputPricePer1K.IsNegative() {
		return nil, models.NewValidationError("input_price_per_1k", "prices must not be negative")
	}

	effectiveFrom := time.Now().UTC().Truncate(24 * time.Hour)
	if req.EffectiveFrom != "" {
		parsed, err := time.Parse("2006-01-02", req.EffectiveFrom)
		if err != nil {
			return nil, models.NewValidationError("effective_from", "effective_from must be YYYY-MM-DD")
		}
		effectiveFrom = parsed
	}

	row := models.PricingOverride{
		ID:               uuid.New().String(),
		Provider:         NormalizeProvider(req.Provider),
		Model:            req.Model,
		InputPricePer1K:  req.InputPricePer1K,
		OutputPricePer1K: req.OutputPricePer1K,
		EffectiveFrom:    effectiveFrom,
		IsActive:         true,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "provider"},
				{Name: "model"},
				{Name: "effective_from"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"input_price_per_1k",
				"output_price_per_1k",
				"is_active",
				"updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, models.NewStorageError("failed to upsert pricing override", err)
	}

	return &row, nil
}
