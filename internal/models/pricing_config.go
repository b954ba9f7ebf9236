package models

// PricingConfig points at the pricing policy file.
type PricingConfig struct {
	ConfigPath string `yaml:"config_path" json:"config_path"`
}

// ReportsConfig configures CSV billing report output.
type ReportsConfig struct {
	OutputDir string `yaml:"output_dir,omitempty" json:"output_dir,omitzero"`
}
