package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Supported LLM providers
const (
	ProviderBedrock     = "bedrock"
	ProviderAzureOpenAI = "azure_openai"
	ProviderGemini      = "gemini"
)

// Cloud providers for the host dimension (infrastructure running the
// caller, distinct from the LLM provider)
const (
	CloudProviderAWS     = "aws"
	CloudProviderAzure   = "azure"
	CloudProviderGCP     = "gcp"
	CloudProviderOnPrem  = "on-prem"
	CloudProviderUnknown = "unknown"
)

type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type for Metadata: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

func (Metadata) GormDataType() string {
	return "json"
}

func (Metadata) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "JSON"
	case "sqlite":
		return "TEXT"
	default:
		return "TEXT"
	}
}

// TokenUsageRaw is one recorded LLM API call. Rows are created once at
// ingestion and never updated or deleted by aggregation.
type TokenUsageRaw struct {
	ID               string          `gorm:"primaryKey;size:36" json:"id"`
	TenantID         string          `gorm:"not null;size:255;index;index:idx_usage_tenant_timestamp,priority:1" json:"tenant_id"`
	Provider         string          `gorm:"not null;size:50;index:idx_usage_provider_model,priority:1" json:"provider"`
	Model            string          `gorm:"not null;size:255;index:idx_usage_provider_model,priority:2" json:"model"`
	PromptTokens     int64           `gorm:"not null" json:"prompt_tokens"`
	CompletionTokens int64           `gorm:"not null" json:"completion_tokens"`
	TotalTokens      int64           `gorm:"not null" json:"total_tokens"`
	CalculatedCost   decimal.Decimal `gorm:"type:decimal(20,10);not null" json:"calculated_cost"`
	Timestamp        time.Time       `gorm:"not null;index;index:idx_usage_tenant_timestamp,priority:2" json:"timestamp"`
	LatencyMs        *int64          `json:"latency_ms,omitempty"`
	CloudProvider    string          `gorm:"not null;size:50;default:'unknown'" json:"cloud_provider"`
	Hostname         string          `gorm:"size:255;default:''" json:"hostname,omitzero"`
	InstanceID       string          `gorm:"size:255;default:''" json:"instance_id,omitzero"`
	K8sPod           string          `gorm:"size:255;default:''" json:"k8s_pod,omitzero"`
	K8sNamespace     string          `gorm:"size:255;default:''" json:"k8s_namespace,omitzero"`
	K8sNode          string          `gorm:"size:255;default:''" json:"k8s_node,omitzero"`
	Metadata         Metadata        `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt        time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (TokenUsageRaw) TableName() string {
	return "token_usage_raw"
}

// TenantDailySummary is a per-day rollup of raw usage, keyed uniquely by
// (tenant, date, provider, model, cloud provider). Rebuilt wholesale by
// the daily aggregation job; re-running a date overwrites the row.
type TenantDailySummary struct {
	ID                    string          `gorm:"primaryKey;size:36" json:"id"`
	TenantID              string          `gorm:"not null;size:255;uniqueIndex:uq_daily_summary,priority:1;index:idx_daily_tenant_date,priority:1" json:"tenant_id"`
	Date                  time.Time       `gorm:"type:date;not null;uniqueIndex:uq_daily_summary,priority:2;index:idx_daily_tenant_date,priority:2" json:"date"`
	Provider              string          `gorm:"not null;size:50;uniqueIndex:uq_daily_summary,priority:3" json:"provider"`
	Model                 string          `gorm:"not null;size:255;uniqueIndex:uq_daily_summary,priority:4" json:"model"`
	CloudProvider         string          `gorm:"not null;size:50;uniqueIndex:uq_daily_summary,priority:5" json:"cloud_provider"`
	TotalRequests         int64           `gorm:"not null;default:0" json:"total_requests"`
	TotalPromptTokens     int64           `gorm:"not null;default:0" json:"total_prompt_tokens"`
	TotalCompletionTokens int64           `gorm:"not null;default:0" json:"total_completion_tokens"`
	TotalTokens           int64           `gorm:"not null;default:0" json:"total_tokens"`
	TotalCost             decimal.Decimal `gorm:"type:decimal(20,10);not null" json:"total_cost"`
	AvgLatencyMs          *int64          `json:"avg_latency_ms,omitempty"`
	CreatedAt             time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (TenantDailySummary) TableName() string {
	return "tenant_daily_summary"
}

// TenantMonthlySummary is a per-month rollup of daily summaries, keyed
// uniquely by (tenant, year, month, provider, model). The cloud provider
// dimension is intentionally dropped at this level.
type TenantMonthlySummary struct {
	ID                    string          `gorm:"primaryKey;size:36" json:"id"`
	TenantID              string          `gorm:"not null;size:255;uniqueIndex:uq_monthly_summary,priority:1;index:idx_monthly_tenant_period,priority:1" json:"tenant_id"`
	Year                  int             `gorm:"not null;uniqueIndex:uq_monthly_summary,priority:2;index:idx_monthly_tenant_period,priority:2" json:"year"`
	Month                 int             `gorm:"not null;uniqueIndex:uq_monthly_summary,priority:3;index:idx_monthly_tenant_period,priority:3" json:"month"`
	Provider              string          `gorm:"not null;size:50;uniqueIndex:uq_monthly_summary,priority:4" json:"provider"`
	Model                 string          `gorm:"not null;size:255;uniqueIndex:uq_monthly_summary,priority:5" json:"model"`
	TotalRequests         int64           `gorm:"not null;default:0" json:"total_requests"`
	TotalPromptTokens     int64           `gorm:"not null;default:0" json:"total_prompt_tokens"`
	TotalCompletionTokens int64           `gorm:"not null;default:0" json:"total_completion_tokens"`
	TotalTokens           int64           `gorm:"not null;default:0" json:"total_tokens"`
	TotalCost             decimal.Decimal `gorm:"type:decimal(20,10);not null" json:"total_cost"`
	CreatedAt             time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (TenantMonthlySummary) TableName() string {
	return "tenant_monthly_summary"
}

// PricingOverride is a runtime pricing row that takes precedence over the
// pricing config file when active.
type PricingOverride struct {
	ID               string          `gorm:"primaryKey;size:36" json:"id"`
	Provider         string          `gorm:"not null;size:50;uniqueIndex:uq_pricing_model_date,priority:1;index:idx_pricing_lookup,priority:1" json:"provider"`
	Model            string          `gorm:"not null;size:255;uniqueIndex:uq_pricing_model_date,priority:2;index:idx_pricing_lookup,priority:2" json:"model"`
	InputPricePer1K  decimal.Decimal `gorm:"column:input_price_per_1k;type:decimal(20,10);not null" json:"input_price_per_1k"`
	OutputPricePer1K decimal.Decimal `gorm:"column:output_price_per_1k;type:decimal(20,10);not null" json:"output_price_per_1k"`
	EffectiveFrom    time.Time       `gorm:"type:date;not null;uniqueIndex:uq_pricing_model_date,priority:3" json:"effective_from"`
	EffectiveTo      *time.Time      `gorm:"type:date" json:"effective_to,omitempty"`
	IsActive         bool            `gorm:"not null;default:true;index:idx_pricing_lookup,priority:3" json:"is_active"`
	CreatedAt        time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (PricingOverride) TableName() string {
	return "pricing_overrides"
}
