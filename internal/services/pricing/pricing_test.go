package pricing

import (
	"os"
	"path/filepath"
	"testing"
)

const testPricingYAML = `
bedrock:
  anthropic.claude-3-sonnet:
    input_per_1k: 0.003
    output_per_1k: 0.015
  anthropic.claude-3:
    input_per_1k: 0.004
    output_per_1k: 0.02
  amazon.titan-text-express-v1:
    input_per_1k: 0.0002
    output_per_1k: 0.0006

azure_openai:
  gpt-4o:
    input_per_1k: 0.005
    output_per_1k: 0.015

gemini:
  gemini-1.5-pro:
    input_per_1k: 0.00125
    output_per_1k: 0.005

defaults:
  bedrock:
    input_per_1k: 0.002
    output_per_1k: 0.006
  azure_openai:
    input_per_1k: 0.002
    output_per_1k: 0.006
  gemini:
    input_per_1k: 0.001
    output_per_1k: 0.003

tenant_overrides:
  tenant-discounted:
    discount_percent: 10
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(writeTestConfig(t, testPricingYAML))
}

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bedrock", "bedrock"},
		{"aws_bedrock", "bedrock"},
		{"AWS_Bedrock", "bedrock"},
		{"azure", "azure_openai"},
		{"azure_openai", "azure_openai"},
		{"google", "gemini"},
		{"google_gemini", "gemini"},
		{"Gemini", "gemini"},
		{"somethingelse", "somethingelse"},
	}

	for _, tt := range tests {
		if got := NormalizeProvider(tt.in); got != tt.want {
			t.Errorf("NormalizeProvider(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeProviderIdempotent(t *testing.T) {
	for _, in := range []string{"aws_bedrock", "azure", "google", "bedrock"} {
		once := NormalizeProvider(in)
		twice := NormalizeProvider(once)
		if once != twice {
			t.Errorf("NormalizeProvider not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestModelPricingResolution(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name       string
		provider   string
		model      string
		wantInput  string
		wantOutput string
	}{
		{"exact match", "bedrock", "anthropic.claude-3-sonnet", "0.003", "0.015"},
		{"prefix match longer model", "bedrock", "anthropic.claude-3-sonnet-20240229", "0.003", "0.015"},
		{"prefix match shorter model", "bedrock", "amazon.titan-text", "0.0002", "0.0006"},
		{"first prefix entry wins", "bedrock", "anthropic.claude-3-opus", "0.004", "0.02"},
		{"provider default", "bedrock", "unknown-model", "0.002", "0.006"},
		{"gemini default", "gemini", "unknown-model", "0.001", "0.003"},
		{"synonym provider", "aws_bedrock", "anthropic.claude-3-sonnet", "0.003", "0.015"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, output := engine.ModelPricing(tt.provider, tt.model)
			if input.String() != tt.wantInput {
				t.Errorf("input price = %s, want %s", input, tt.wantInput)
			}
			if output.String() != tt.wantOutput {
				t.Errorf("output price = %s, want %s", output, tt.wantOutput)
			}
		})
	}
}

func TestModelPricingGlobalDefault(t *testing.T) {
	engine := NewEngine(filepath.Join(t.TempDir(), "missing.yaml"))

	input, output := engine.ModelPricing("some_provider", "some-model")
	if input.String() != "0.002" || output.String() != "0.006" {
		t.Errorf("global default = (%s, %s), want (0.002, 0.006)", input, output)
	}
}

func TestCalculateCost(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name       string
		provider   string
		model      string
		prompt     int64
		completion int64
		tenantID   string
		want       string
	}{
		{"sonnet 1k/500", "bedrock", "anthropic.claude-3-sonnet", 1000, 500, "tenant-a", "0.0105"},
		{"gpt-4o 2k/1k", "azure_openai", "gpt-4o", 2000, 1000, "tenant-a", "0.025"},
		{"default pricing 1k/500", "bedrock", "unknown-model", 1000, 500, "tenant-a", "0.005"},
		{"zero tokens", "bedrock", "anthropic.claude-3-sonnet", 0, 0, "tenant-a", "0"},
		{"prompt only", "bedrock", "anthropic.claude-3-sonnet", 100, 0, "tenant-a", "0.0003"},
		{"ten percent discount", "bedrock", "unknown-model", 1000, 500, "tenant-discounted", "0.0045"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.CalculateCost(tt.provider, tt.model, tt.prompt, tt.completion, tt.tenantID)
			if got.String() != tt.want {
				t.Errorf("CalculateCost = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCalculateCostZeroOnlyForZeroTokens(t *testing.T) {
	engine := newTestEngine(t)

	if got := engine.CalculateCost("bedrock", "anthropic.claude-3-sonnet", 1, 0, ""); !got.IsPositive() {
		t.Errorf("cost for a single prompt token should be positive, got %s", got)
	}
	if got := engine.CalculateCost("bedrock", "anthropic.claude-3-sonnet", 0, 1, ""); !got.IsPositive() {
		t.Errorf("cost for a single completion token should be positive, got %s", got)
	}
	if got := engine.CalculateCost("bedrock", "anthropic.claude-3-sonnet", 0, 0, ""); !got.IsZero() {
		t.Errorf("cost for zero tokens should be zero, got %s", got)
	}
}

func TestCalculateCostMonotonic(t *testing.T) {
	engine := newTestEngine(t)

	small := engine.CalculateCost("gemini", "gemini-1.5-pro", 100, 100, "")
	large := engine.CalculateCost("gemini", "gemini-1.5-pro", 1000, 1000, "")
	if !large.GreaterThan(small) {
		t.Errorf("cost should grow with token counts: %s vs %s", small, large)
	}
}

func TestReloadSwapsTable(t *testing.T) {
	path := writeTestConfig(t, testPricingYAML)
	engine := NewEngine(path)

	input, _ := engine.ModelPricing("azure_openai", "gpt-4o")
	if input.String() != "0.005" {
		t.Fatalf("initial input price = %s, want 0.005", input)
	}

	updated := `
azure_openai:
  gpt-4o:
    input_per_1k: 0.009
    output_per_1k: 0.027
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	if err := engine.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	input, output := engine.ModelPricing("azure_openai", "gpt-4o")
	if input.String() != "0.009" || output.String() != "0.027" {
		t.Errorf("after reload = (%s, %s), want (0.009, 0.027)", input, output)
	}
}

func TestReloadMissingFileFallsBack(t *testing.T) {
	path := writeTestConfig(t, testPricingYAML)
	engine := NewEngine(path)

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove config: %v", err)
	}
	if err := engine.Reload(); err == nil {
		t.Error("Reload of a missing file should report an error")
	}

	// Built-in defaults still resolve.
	input, output := engine.ModelPricing("gemini", "anything")
	if input.String() != "0.001" || output.String() != "0.003" {
		t.Errorf("builtin gemini default = (%s, %s), want (0.001, 0.003)", input, output)
	}
}

func TestProviderModelsSorted(t *testing.T) {
	engine := newTestEngine(t)

	listed := engine.ProviderModels("bedrock")
	if len(listed) != 3 {
		t.Fatalf("expected 3 bedrock models, got %d", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i-1].Model >= listed[i].Model {
			t.Errorf("models not sorted: %s before %s", listed[i-1].Model, listed[i].Model)
		}
	}
}
