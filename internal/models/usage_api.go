package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxBatchSize is the maximum number of events accepted per batch call.
const MaxBatchSize = 1000

// K8sMetadata is Kubernetes metadata reported by an instrumented caller.
type K8sMetadata struct {
	Pod       string `json:"pod,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Node      string `json:"node,omitempty"`
}

// HostMetadata describes the infrastructure the caller runs on.
type HostMetadata struct {
	Hostname      string       `json:"hostname,omitempty"`
	CloudProvider string       `json:"cloud_provider,omitempty"`
	InstanceID    string       `json:"instance_id,omitempty"`
	K8s           *K8sMetadata `json:"k8s,omitempty"`
}

// UsageEvent is a single LLM API call reported by an SDK or caller.
// Timestamp is the event time (not ingestion time), ISO 8601 with a "Z"
// suffix accepted as UTC.
type UsageEvent struct {
	TenantID         string        `json:"tenant_id"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	Timestamp        string        `json:"timestamp"`
	LatencyMs        *int64        `json:"latency_ms,omitempty"`
	Host             *HostMetadata `json:"host,omitempty"`
	Metadata         Metadata      `json:"metadata,omitempty"`
}

// UsageEventResponse is returned after recording a usage event.
type UsageEventResponse struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	Provider       string          `json:"provider"`
	Model          string          `json:"model"`
	TotalTokens    int64           `json:"total_tokens"`
	CalculatedCost decimal.Decimal `json:"calculated_cost"`
	Timestamp      time.Time       `json:"timestamp"`
}

// BatchItemResult reports the outcome of one event in a batch. Exactly
// one of Record or Error is set.
type BatchItemResult struct {
	Index  int                 `json:"index"`
	Record *UsageEventResponse `json:"record,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// BatchRecordResponse summarizes a batch ingestion call.
type BatchRecordResponse struct {
	Recorded int               `json:"recorded"`
	Failed   int               `json:"failed"`
	Results  []BatchItemResult `json:"results"`
}

// DimensionStats is one breakdown bucket in a tenant summary.
type DimensionStats struct {
	Requests int64           `json:"requests"`
	Tokens   int64           `json:"tokens"`
	Cost     decimal.Decimal `json:"cost"`
}

// TenantSummaryResponse is the overall usage summary for a tenant.
type TenantSummaryResponse struct {
	TenantID              string                    `json:"tenant_id"`
	TotalRequests         int64                     `json:"total_requests"`
	TotalPromptTokens     int64                     `json:"total_prompt_tokens"`
	TotalCompletionTokens int64                     `json:"total_completion_tokens"`
	TotalTokens           int64                     `json:"total_tokens"`
	TotalCost             decimal.Decimal           `json:"total_cost"`
	FirstUsage            *time.Time                `json:"first_usage,omitempty"`
	LastUsage             *time.Time                `json:"last_usage,omitempty"`
	ByProvider            map[string]DimensionStats `json:"by_provider"`
	ByModel               map[string]DimensionStats `json:"by_model"`
	ByCloudProvider       map[string]DimensionStats `json:"by_cloud_provider"`
}

// DailySummaryResponse is the daily usage report for a tenant over a
// date range, newest first, with a client-side rollup over the rows.
type DailySummaryResponse struct {
	TenantID    string               `json:"tenant_id"`
	StartDate   string               `json:"start_date"`
	EndDate     string               `json:"end_date"`
	Items       []TenantDailySummary `json:"items"`
	TotalCost   decimal.Decimal      `json:"total_cost"`
	TotalTokens int64                `json:"total_tokens"`
}

// MonthlySummaryResponse is the monthly usage report for a tenant.
type MonthlySummaryResponse struct {
	TenantID    string                 `json:"tenant_id"`
	Items       []TenantMonthlySummary `json:"items"`
	TotalCost   decimal.Decimal        `json:"total_cost"`
	TotalTokens int64                  `json:"total_tokens"`
}

// ModelPricing is the published price of one model.
type ModelPricing struct {
	Model            string          `json:"model"`
	InputPricePer1K  decimal.Decimal `json:"input_price_per_1k"`
	OutputPricePer1K decimal.Decimal `json:"output_price_per_1k"`
}

// ProviderModelsResponse lists available models and pricing for a provider.
type ProviderModelsResponse struct {
	Provider string         `json:"provider"`
	Models   []ModelPricing `json:"models"`
}

// PricingOverrideRequest upserts a runtime pricing override.
type PricingOverrideRequest struct {
	Provider         string          `json:"provider"`
	Model            string          `json:"model"`
	InputPricePer1K  decimal.Decimal `json:"input_price_per_1k"`
	OutputPricePer1K decimal.Decimal `json:"output_price_per_1k"`
	EffectiveFrom    string          `json:"effective_from,omitempty"`
}
