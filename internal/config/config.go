package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/matthiasponsi/token-trackr/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultDailyHour    = 2
	defaultMonthlyDay   = 1
	defaultMonthlyHour  = 3
	defaultReportDay    = 2
	defaultReportHour   = 4
	defaultReportDir    = "reports"
	defaultPricingPath  = "config/pricing.yaml"
	defaultRedisTTLSecs = 60
)

// Config represents the complete application configuration
type Config struct {
	Server    models.ServerConfig    `yaml:"server"`
	Database  *models.DatabaseConfig `yaml:"database,omitempty"`
	Redis     *models.RedisConfig    `yaml:"redis,omitempty"`
	Pricing   models.PricingConfig   `yaml:"pricing"`
	Scheduler models.SchedulerConfig `yaml:"scheduler"`
	Reports   models.ReportsConfig   `yaml:"reports"`
}

// LoadFromFile loads configuration from a YAML file with environment variable substitution
func LoadFromFile(configPath string) (*Config, error) {
	// Validate and clean the file path to prevent directory traversal
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	content := substituteEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// LoadEnvFiles loads environment variables from .env files in order of precedence
// Loads files in the order provided (first has highest priority)
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				fmt.Printf("Loaded environment variables from %s\n", envFile)
			}
		}
	}
}

// New creates a new Config instance by loading from the specified config file path
func New(configPath string) (*Config, error) {
	return LoadFromFile(configPath)
}

func (c *Config) applyDefaults() {
	if c.Pricing.ConfigPath == "" {
		c.Pricing.ConfigPath = defaultPricingPath
	}
	if c.Reports.OutputDir == "" {
		c.Reports.OutputDir = defaultReportDir
	}
	if c.Scheduler.DailyHour == 0 {
		c.Scheduler.DailyHour = defaultDailyHour
	}
	if c.Scheduler.MonthlyDay == 0 {
		c.Scheduler.MonthlyDay = defaultMonthlyDay
	}
	if c.Scheduler.MonthlyHour == 0 {
		c.Scheduler.MonthlyHour = defaultMonthlyHour
	}
	if c.Scheduler.ReportDay == 0 {
		c.Scheduler.ReportDay = defaultReportDay
	}
	if c.Scheduler.ReportHour == 0 {
		c.Scheduler.ReportHour = defaultReportHour
	}
	if c.Redis != nil && c.Redis.CacheTTLSeconds == 0 {
		c.Redis.CacheTTLSeconds = defaultRedisTTLSecs
	}
}

// Validate checks the configuration for required fields and consistency
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}

	switch c.Database.Type {
	case models.PostgreSQL, models.MySQL:
		if c.Database.DSN == "" && c.Database.Host == "" {
			return fmt.Errorf("database host or dsn is required for %s", c.Database.Type)
		}
	case models.SQLite:
		if c.Database.FilePath == "" && c.Database.DSN == "" {
			return fmt.Errorf("database file_path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.Scheduler.DailyHour < 0 || c.Scheduler.DailyHour > 23 {
		return fmt.Errorf("scheduler daily_hour must be between 0 and 23")
	}
	if c.Scheduler.MonthlyDay < 1 || c.Scheduler.MonthlyDay > 28 {
		return fmt.Errorf("scheduler monthly_day must be between 1 and 28")
	}

	return nil
}

// GetNormalizedLogLevel returns the log level in lowercase for consistent comparison
func (c *Config) GetNormalizedLogLevel() string {
	return strings.ToLower(c.Server.LogLevel)
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	// Pattern matches ${VAR_NAME} or ${VAR_NAME:-default_value}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		submatches := re.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""

		if len(submatches) > 2 && submatches[2] != "" {
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}
