package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all runtime configuration for kpibot-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables; environment variables override YAML values. Secrets (passwords,
// API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// KPICatalogPath points at the KPI definitions YAML document.
	KPICatalogPath string `yaml:"kpi_catalog_path" env:"KPI_CATALOG_PATH" env-default:"kpis.yaml"`

	// MigrationsPath points at the SQL migration directory.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// Database configuration (the KPI store)
	Database DatabaseConfig `yaml:"database"`

	// Enrichment configuration (optional best-effort LLM refinement)
	Enrichment EnrichmentConfig `yaml:"enrichment"`

	// Extraction tuning for the scope extractor
	Extraction ExtractionConfig `yaml:"extraction"`

	// Bot identity advertised on the models endpoint
	Bot BotConfig `yaml:"bot"`
}

// DatabaseConfig holds connection settings for the KPI store.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"kpibot"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"kpibot"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// EnrichmentConfig holds settings for the optional LLM refinement stage.
// When disabled or unreachable the deterministic extraction result stands
// on its own.
type EnrichmentConfig struct {
	Enabled        bool   `yaml:"enabled" env:"ENRICHMENT_ENABLED" env-default:"true"`
	BaseURL        string `yaml:"base_url" env:"ENRICHMENT_BASE_URL" env-default:"http://localhost:11434/v1"`
	Model          string `yaml:"model" env:"ENRICHMENT_MODEL" env-default:"qwen2.5-coder:7b"`
	APIKey         string `yaml:"-" env:"ENRICHMENT_API_KEY"` // Secret - not in YAML
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"ENRICHMENT_TIMEOUT_SECONDS" env-default:"30"`
}

// ExtractionConfig tunes the deterministic scope extractor.
type ExtractionConfig struct {
	// KnownProducts are product codes matched as whole tokens.
	KnownProducts []string `yaml:"known_products" env:"KNOWN_PRODUCTS" env-separator:","`

	// SerialWindowMin/Max bound the YYYYMM envelope used to tell a
	// year-month apart from a six-digit serial number. The window moves
	// over time, so it lives in configuration rather than code.
	SerialWindowMin int `yaml:"serial_window_min" env:"SERIAL_WINDOW_MIN" env-default:"202001"`
	SerialWindowMax int `yaml:"serial_window_max" env:"SERIAL_WINDOW_MAX" env-default:"203012"`

	// MaxLookupCandidates caps per-turn lookup-assisted resolution to
	// bound worst-case latency and store load.
	MaxLookupCandidates int `yaml:"max_lookup_candidates" env:"MAX_LOOKUP_CANDIDATES" env-default:"8"`
}

// BotConfig is the identity advertised by the models endpoint.
type BotConfig struct {
	ID              string `yaml:"id" env:"BOT_ID" env-default:"kpibot-rule-bot"`
	Name            string `yaml:"name" env:"BOT_NAME" env-default:"KPI Bot"`
	ProfileImageURL string `yaml:"profile_image_url" env:"BOT_PROFILE_IMAGE_URL" env-default:""`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if len(cfg.Extraction.KnownProducts) == 0 {
		cfg.Extraction.KnownProducts = DefaultKnownProducts()
	}
	if cfg.Extraction.SerialWindowMin > cfg.Extraction.SerialWindowMax {
		return nil, fmt.Errorf("serial_window_min %d exceeds serial_window_max %d",
			cfg.Extraction.SerialWindowMin, cfg.Extraction.SerialWindowMax)
	}

	return cfg, nil
}

// DefaultKnownProducts returns the built-in product code list used when the
// config file does not declare one.
func DefaultKnownProducts() []string {
	return []string{"CT", "3DI", "SPS", "ES", "SSP", "TPS", "TS", "FSI", "Certas", "SD", "Epion", "FPD"}
}
