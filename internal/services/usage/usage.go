package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/matthiasponsi/token-trackr/internal/models"
	"github.com/matthiasponsi/token-trackr/internal/services/pricing"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service records raw usage events and serves read-side summaries.
type Service struct {
	db      *gorm.DB
	pricing *pricing.Engine
	cache   *SummaryCache
}

// NewService creates a usage service. cache may be nil when no redis is
// configured.
func NewService(db *gorm.DB, pricingEngine *pricing.Engine, cache *SummaryCache) *Service {
	return &Service{
		db:      db,
		pricing: pricingEngine,
		cache:   cache,
	}
}

// RecordUsage validates, prices and persists a single usage event.
// The returned record carries the generated id and server-computed
// fields (total tokens, calculated cost).
func (s *Service) RecordUsage(ctx context.Context, event models.UsageEvent) (*models.TokenUsageRaw, error) {
	timestamp, err := validateEvent(&event)
	if err != nil {
		return nil, err
	}

	cost := s.pricing.CalculateCost(
		event.Provider,
		event.Model,
		event.PromptTokens,
		event.CompletionTokens,
		event.TenantID,
	)

	usage := models.TokenUsageRaw{
		ID:               uuid.New().String(),
		TenantID:         event.TenantID,
		Provider:         event.Provider,
		Model:            event.Model,
		PromptTokens:     event.PromptTokens,
		CompletionTokens: event.CompletionTokens,
		TotalTokens:      event.PromptTokens + event.CompletionTokens,
		CalculatedCost:   cost,
		Timestamp:        timestamp,
		LatencyMs:        event.LatencyMs,
		CloudProvider:    models.CloudProviderUnknown,
	}

	if host := event.Host; host != nil {
		if host.CloudProvider != "" {
			usage.CloudProvider = host.CloudProvider
		}
		usage.Hostname = host.Hostname
		usage.InstanceID = host.InstanceID
		if k8s := host.K8s; k8s != nil {
			usage.K8sPod = k8s.Pod
			usage.K8sNamespace = k8s.Namespace
			usage.K8sNode = k8s.Node
		}
	}

	// The metadata blob is stored opaquely, never parsed.
	if len(event.Metadata) > 0 {
		usage.Metadata = event.Metadata
	}

	if err := s.db.WithContext(ctx).Create(&usage).Error; err != nil {
		return nil, models.NewStorageError("failed to record usage event", err)
	}

	fiberlog.Infof("Recorded usage event: tenant=%s provider=%s model=%s tokens=%d cost=%s",
		usage.TenantID, usage.Provider, usage.Model, usage.TotalTokens, usage.CalculatedCost.String())

	return &usage, nil
}

// RecordBatch records up to MaxBatchSize events. Events are validated
// and recorded independently; one event's failure does not abort the
// batch. Each item's outcome is reported back to the caller.
func (s *Service) RecordBatch(ctx context.Context, events []models.UsageEvent) (*models.BatchRecordResponse, error) {
	if len(events) > models.MaxBatchSize {
		return nil, models.NewValidationError("events", fmt.Sprintf("maximum batch size is %d events", models.MaxBatchSize))
	}

	resp := &models.BatchRecordResponse{
		Results: make([]models.BatchItemResult, 0, len(events)),
	}

	for i, event := range events {
		usage, err := s.RecordUsage(ctx, event)
		if err != nil {
			fiberlog.Warnf("Failed to record event %d in batch: %v", i, err)
			resp.Failed++
			resp.Results = append(resp.Results, models.BatchItemResult{Index: i, Error: err.Error()})
			continue
		}

		record := toEventResponse(usage)
		resp.Recorded++
		resp.Results = append(resp.Results, models.BatchItemResult{Index: i, Record: &record})
	}

	return resp, nil
}

func toEventResponse(usage *models.TokenUsageRaw) models.UsageEventResponse {
	return models.UsageEventResponse{
		ID:             usage.ID,
		TenantID:       usage.TenantID,
		Provider:       usage.Provider,
		Model:          usage.Model,
		TotalTokens:    usage.TotalTokens,
		CalculatedCost: usage.CalculatedCost,
		Timestamp:      usage.Timestamp,
	}
}

var validProviders = map[string]bool{
	models.ProviderBedrock:     true,
	models.ProviderAzureOpenAI: true,
	models.ProviderGemini:      true,
}

var validCloudProviders = map[string]bool{
	models.CloudProviderAWS:     true,
	models.CloudProviderAzure:   true,
	models.CloudProviderGCP:     true,
	models.CloudProviderOnPrem:  true,
	models.CloudProviderUnknown: true,
}

// validateEvent checks the payload constraints and returns the parsed
// event timestamp in UTC.
func validateEvent(event *models.UsageEvent) (time.Time, error) {
	if event.TenantID == "" || len(event.TenantID) > 255 {
		return time.Time{}, models.NewValidationError("tenant_id", "tenant_id must be between 1 and 255 characters")
	}
	if !validProviders[event.Provider] {
		return time.Time{}, models.NewValidationError("provider", "provider must be one of: bedrock, azure_openai, gemini")
	}
	if event.Model == "" || len(event.Model) > 255 {
		return time.Time{}, models.NewValidationError("model", "model must be between 1 and 255 characters")
	}
	if event.PromptTokens < 0 {
		return time.Time{}, models.NewValidationError("prompt_tokens", "prompt_tokens must not be negative")
	}
	if event.CompletionTokens < 0 {
		return time.Time{}, models.NewValidationError("completion_tokens", "completion_tokens must not be negative")
	}
	if event.LatencyMs != nil && *event.LatencyMs < 0 {
		return time.Time{}, models.NewValidationError("latency_ms", "latency_ms must not be negative")
	}
	if event.Host != nil && event.Host.CloudProvider != "" && !validCloudProviders[event.Host.CloudProvider] {
		return time.Time{}, models.NewValidationError("host.cloud_provider", "cloud_provider must be one of: aws, azure, gcp, on-prem, unknown")
	}

	timestamp, err := parseTimestamp(event.Timestamp)
	if err != nil {
		return time.Time{}, models.NewValidationError("timestamp", "timestamp must be an ISO 8601 datetime")
	}

	return timestamp, nil
}

// parseTimestamp accepts RFC 3339 ("Z" or numeric offset) and bare
// datetimes without a zone, which are treated as UTC.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}

	if t, err := time.Parse("2006-01-02T15:04:05", value); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %s", value)
}
