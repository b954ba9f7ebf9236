package pricing

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/matthiasponsi/token-trackr/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Default pricing applied when neither the model nor the provider has a
// configured price, in USD per 1k tokens.
var (
	globalDefaultInput  = decimal.NewFromFloat(0.002)
	globalDefaultOutput = decimal.NewFromFloat(0.006)
)

// costScale is the number of fractional digits kept on calculated costs.
const costScale = 10

type modelPrice struct {
	input  decimal.Decimal
	output decimal.Decimal
}

type modelEntry struct {
	name  string
	price modelPrice
}

// table is an immutable snapshot of the pricing policy. Readers always
// see a complete table; Reload swaps the whole pointer.
type table struct {
	// providers keeps model entries in config file order, so prefix
	// matching is deterministic (first match wins).
	providers map[string][]modelEntry
	index     map[string]map[string]modelPrice
	defaults  map[string]modelPrice
	discounts map[string]decimal.Decimal
}

// Engine resolves (provider, model) pricing and computes event costs.
// The policy is loaded from a YAML file at construction and can be
// reloaded at runtime; missing or unparseable files fall back to
// built-in defaults.
type Engine struct {
	configPath string
	table      atomic.Pointer[table]

	mu        sync.Mutex
	overrides []models.PricingOverride
}

// NewEngine loads the pricing policy from configPath. A missing config
// file is not fatal; built-in defaults apply.
func NewEngine(configPath string) *Engine {
	e := &Engine{configPath: configPath}
	t, err := loadTable(configPath)
	if err != nil {
		fiberlog.Warnf("Pricing config not loaded, using defaults: %v", err)
		t = builtinTable()
	}
	e.table.Store(t)
	return e
}

// Reload re-reads the pricing policy file and atomically swaps the
// in-memory table. Active runtime overrides are re-applied on top.
// Concurrent readers never observe a partially-updated table.
func (e *Engine) Reload() error {
	t, err := loadTable(e.configPath)
	if err != nil {
		fiberlog.Warnf("Pricing reload failed, using defaults: %v", err)
		t = builtinTable()
	}

	e.mu.Lock()
	applyOverrides(t, e.overrides)
	e.table.Store(t)
	e.mu.Unlock()

	if err != nil {
		return models.NewConfigError("failed to reload pricing config", err)
	}
	return nil
}

// SetOverrides installs runtime pricing overrides (from the override
// table) on top of the file policy and swaps the table.
func (e *Engine) SetOverrides(rows []models.PricingOverride) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.overrides = rows

	base, err := loadTable(e.configPath)
	if err != nil {
		base = builtinTable()
	}
	applyOverrides(base, rows)
	e.table.Store(base)
}

// NormalizeProvider maps a provider name to its canonical pricing key.
// Normalization is case-insensitive and idempotent.
func NormalizeProvider(provider string) string {
	switch strings.ToLower(provider) {
	case "bedrock", "aws_bedrock":
		return models.ProviderBedrock
	case "azure_openai", "azure":
		return models.ProviderAzureOpenAI
	case "gemini", "google", "google_gemini":
		return models.ProviderGemini
	default:
		return strings.ToLower(provider)
	}
}

// ModelPricing returns (input, output) price per 1k tokens for a model.
// Resolution order: exact model key, prefix match in table order,
// provider default, global default.
func (e *Engine) ModelPricing(provider, model string) (decimal.Decimal, decimal.Decimal) {
	t := e.table.Load()
	key := NormalizeProvider(provider)

	if byModel, ok := t.index[key]; ok {
		if p, ok := byModel[model]; ok {
			return p.input, p.output
		}
	}

	// Model names reported by SDKs are sometimes truncated or carry a
	// version suffix; fall back to a prefix match either way round.
	for _, entry := range t.providers[key] {
		if strings.HasPrefix(model, entry.name) || strings.HasPrefix(entry.name, model) {
			return entry.price.input, entry.price.output
		}
	}

	if p, ok := t.defaults[key]; ok {
		return p.input, p.output
	}

	return globalDefaultInput, globalDefaultOutput
}

// CalculateCost computes the cost of a usage event:
// (promptTokens/1000)*inputPrice + (completionTokens/1000)*outputPrice,
// reduced by the tenant's configured discount percentage, quantized to
// ten fractional digits.
func (e *Engine) CalculateCost(provider, model string, promptTokens, completionTokens int64, tenantID string) decimal.Decimal {
	input, output := e.ModelPricing(provider, model)

	inputCost := decimal.NewFromInt(promptTokens).Shift(-3).Mul(input)
	outputCost := decimal.NewFromInt(completionTokens).Shift(-3).Mul(output)
	total := inputCost.Add(outputCost)

	if tenantID != "" {
		if discount := e.tenantDiscount(tenantID); discount.IsPositive() {
			total = total.Mul(decimal.NewFromInt(1).Sub(discount.Shift(-2)))
		}
	}

	return total.RoundBank(costScale)
}

// ProviderModels lists the configured models and prices for a provider,
// sorted by model name.
func (e *Engine) ProviderModels(provider string) []models.ModelPricing {
	t := e.table.Load()
	key := NormalizeProvider(provider)

	entries := t.providers[key]
	out := make([]models.ModelPricing, 0, len(entries))
	for _, entry := range entries {
		out = append(out, models.ModelPricing{
			Model:            entry.name,
			InputPricePer1K:  entry.price.input,
			OutputPricePer1K: entry.price.output,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

func (e *Engine) tenantDiscount(tenantID string) decimal.Decimal {
	t := e.table.Load()
	if d, ok := t.discounts[tenantID]; ok {
		return d
	}
	return decimal.Zero
}

func builtinTable() *table {
	return &table{
		providers: map[string][]modelEntry{},
		index:     map[string]map[string]modelPrice{},
		defaults: map[string]modelPrice{
			models.ProviderBedrock:     {input: decimal.NewFromFloat(0.002), output: decimal.NewFromFloat(0.006)},
			models.ProviderAzureOpenAI: {input: decimal.NewFromFloat(0.002), output: decimal.NewFromFloat(0.006)},
			models.ProviderGemini:      {input: decimal.NewFromFloat(0.001), output: decimal.NewFromFloat(0.003)},
		},
		discounts: map[string]decimal.Decimal{},
	}
}

type priceNode struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

type tenantNode struct {
	DiscountPercent float64 `yaml:"discount_percent"`
}

// loadTable parses the pricing YAML. The file's top-level keys are
// provider names plus the reserved keys "defaults" and
// "tenant_overrides". Model key order within a provider section is
// preserved for deterministic prefix matching.
func loadTable(path string) (*table, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator-controlled config path
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing config %s: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse pricing config: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("pricing config %s is empty", path)
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("pricing config must be a mapping of providers")
	}

	t := &table{
		providers: map[string][]modelEntry{},
		index:     map[string]map[string]modelPrice{},
		defaults:  map[string]modelPrice{},
		discounts: map[string]decimal.Decimal{},
	}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		keyNode, valNode := doc.Content[i], doc.Content[i+1]

		switch keyNode.Value {
		case "defaults":
			var defaults map[string]priceNode
			if err := valNode.Decode(&defaults); err != nil {
				return nil, fmt.Errorf("invalid defaults section: %w", err)
			}
			for provider, p := range defaults {
				t.defaults[NormalizeProvider(provider)] = modelPrice{
					input:  decimal.NewFromFloat(p.InputPer1K),
					output: decimal.NewFromFloat(p.OutputPer1K),
				}
			}

		case "tenant_overrides":
			var tenants map[string]tenantNode
			if err := valNode.Decode(&tenants); err != nil {
				return nil, fmt.Errorf("invalid tenant_overrides section: %w", err)
			}
			for tenant, cfg := range tenants {
				t.discounts[tenant] = decimal.NewFromFloat(cfg.DiscountPercent)
			}

		default:
			provider := NormalizeProvider(keyNode.Value)
			if valNode.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("provider %s section must be a mapping of models", keyNode.Value)
			}
			for j := 0; j+1 < len(valNode.Content); j += 2 {
				modelNode, pNode := valNode.Content[j], valNode.Content[j+1]

				var p priceNode
				if err := pNode.Decode(&p); err != nil {
					return nil, fmt.Errorf("invalid pricing for %s/%s: %w", keyNode.Value, modelNode.Value, err)
				}

				price := modelPrice{
					input:  decimal.NewFromFloat(p.InputPer1K),
					output: decimal.NewFromFloat(p.OutputPer1K),
				}
				t.providers[provider] = append(t.providers[provider], modelEntry{name: modelNode.Value, price: price})
				if t.index[provider] == nil {
					t.index[provider] = map[string]modelPrice{}
				}
				t.index[provider][modelNode.Value] = price
			}
		}
	}

	return t, nil
}

// applyOverrides layers active runtime pricing rows over a table.
// Overridden models replace existing entries in place; new models are
// appended after the file's entries.
func applyOverrides(t *table, rows []models.PricingOverride) {
	for _, row := range rows {
		if !row.IsActive {
			continue
		}

		provider := NormalizeProvider(row.Provider)
		price := modelPrice{input: row.InputPricePer1K, output: row.OutputPricePer1K}

		if t.index[provider] == nil {
			t.index[provider] = map[string]modelPrice{}
		}

		if _, exists := t.index[provider][row.Model]; exists {
			for i, entry := range t.providers[provider] {
				if entry.name == row.Model {
					t.providers[provider][i].price = price
				}
			}
		} else {
			t.providers[provider] = append(t.providers[provider], modelEntry{name: row.Model, price: price})
		}
		t.index[provider][row.Model] = price
	}
}
