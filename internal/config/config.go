package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/invoice-intake/internal/domain/rules"
	"github.com/garyjia/invoice-intake/internal/infrastructure/resilience"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Approval   ApprovalConfig   `mapstructure:"approval"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Events     EventsConfig     `mapstructure:"events"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Watcher    WatcherConfig    `mapstructure:"watcher"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
}

// DatabaseConfig holds database configuration. An empty Path selects the in-memory store.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// ApprovalConfig holds the auto-approval rules
type ApprovalConfig struct {
	// AmountThreshold is kept as text so it converts to a decimal without float rounding
	AmountThreshold              string   `mapstructure:"amount_threshold"`
	MinConfidence                float64  `mapstructure:"min_confidence"`
	RequireInvoiceClassification bool     `mapstructure:"require_invoice_classification"`
	RejectReceiptClassification  bool     `mapstructure:"reject_receipt_classification"`
	AllowedBillToNames           []string `mapstructure:"allowed_bill_to_names"`
}

// OpenAIConfig holds extraction model configuration. An empty APIKey selects the demo extractor.
type OpenAIConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	PromptsPath  string        `mapstructure:"prompts_path"`
	MinTextChars int           `mapstructure:"min_text_chars"`
	MaxPages     int           `mapstructure:"max_pages"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID      string `mapstructure:"app_id"`
	AppSecret  string `mapstructure:"app_secret"`
	ChatID     string `mapstructure:"chat_id"`
	APIBaseURL string `mapstructure:"api_base_url"`
}

// EventsConfig holds message bus configuration. An empty NATSURL disables publishing.
type EventsConfig struct {
	NATSURL        string        `mapstructure:"nats_url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
}

// StorageConfig holds file locations
type StorageConfig struct {
	UploadDir string `mapstructure:"upload_dir"`
	WatchDir  string `mapstructure:"watch_dir"`
	FontName  string `mapstructure:"font_name"`
}

// WatcherConfig holds incoming-folder watcher configuration
type WatcherConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Debounce       time.Duration `mapstructure:"debounce"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
	Extensions     []string      `mapstructure:"extensions"`
}

// ResilienceConfig holds retry and circuit breaker settings for outbound calls
type ResilienceConfig struct {
	RetryMaxAttempts    int           `mapstructure:"retry_max_attempts"`
	RetryInitialBackoff time.Duration `mapstructure:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `mapstructure:"retry_max_backoff"`
	BreakerEnabled      bool          `mapstructure:"breaker_enabled"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
	BreakerOpenTimeout  time.Duration `mapstructure:"breaker_open_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads .env, then the YAML file at configPath (optional), then environment overrides
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Approval.AllowedBillToNames = splitNames(cfg.Approval.AllowedBillToNames)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.max_upload_mb", 20)

	// Database defaults
	v.SetDefault("database.path", "data/invoices.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	// Approval defaults
	def := rules.DefaultConfig()
	v.SetDefault("approval.amount_threshold", def.AmountThreshold.String())
	v.SetDefault("approval.min_confidence", def.MinConfidence)
	v.SetDefault("approval.require_invoice_classification", def.RequireInvoiceClassification)
	v.SetDefault("approval.reject_receipt_classification", def.RejectReceiptClassification)
	v.SetDefault("approval.allowed_bill_to_names", []string{})

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.min_text_chars", 40)
	v.SetDefault("openai.max_pages", 3)
	v.SetDefault("openai.timeout", 60*time.Second)

	// Lark defaults
	v.SetDefault("lark.api_base_url", "http://localhost:8000")

	// Events defaults
	v.SetDefault("events.connect_timeout", 5*time.Second)
	v.SetDefault("events.reconnect_wait", 2*time.Second)
	v.SetDefault("events.max_reconnects", 10)

	// Storage defaults
	v.SetDefault("storage.upload_dir", "data/uploads")
	v.SetDefault("storage.watch_dir", "data/inbox")

	// Watcher defaults
	v.SetDefault("watcher.enabled", false)
	v.SetDefault("watcher.debounce", 500*time.Millisecond)
	v.SetDefault("watcher.process_timeout", 120*time.Second)
	v.SetDefault("watcher.extensions", []string{".pdf"})

	// Resilience defaults
	res := resilience.DefaultConfig()
	v.SetDefault("resilience.retry_max_attempts", res.RetryMaxAttempts)
	v.SetDefault("resilience.retry_initial_backoff", res.RetryInitialBackoff)
	v.SetDefault("resilience.retry_max_backoff", res.RetryMaxBackoff)
	v.SetDefault("resilience.breaker_enabled", res.BreakerEnabled)
	v.SetDefault("resilience.breaker_min_requests", res.BreakerMinRequests)
	v.SetDefault("resilience.breaker_failure_ratio", res.BreakerFailureRatio)
	v.SetDefault("resilience.breaker_open_timeout", res.BreakerOpenTimeout)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the environment variable names operators already use
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		// Sensitive credentials from environment
		"openai.api_key":    "OPENAI_API_KEY",
		"openai.base_url":   "OPENAI_BASE_URL",
		"lark.app_id":       "LARK_APP_ID",
		"lark.app_secret":   "LARK_APP_SECRET",
		"lark.chat_id":      "LARK_CHAT_ID",
		"lark.api_base_url": "API_BASE_URL",
		"events.nats_url":   "NATS_URL",
		"database.path":     "DATABASE_PATH",

		// Approval rules
		"approval.amount_threshold":               "APPROVAL_AMOUNT_THRESHOLD",
		"approval.min_confidence":                 "APPROVAL_MIN_CONFIDENCE",
		"approval.require_invoice_classification": "APPROVAL_REQUIRE_INVOICE_CLASSIFICATION",
		"approval.reject_receipt_classification":  "APPROVAL_REJECT_RECEIPT_CLASSIFICATION",
		"approval.allowed_bill_to_names":          "APPROVAL_ALLOWED_BILL_TO_NAMES",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}
	return nil
}

// splitNames flattens comma-separated entries and drops blanks
func splitNames(in []string) []string {
	out := []string{}
	for _, entry := range in {
		for _, name := range strings.Split(entry, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	r, err := c.Rules()
	if err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("approval: %w", err)
	}

	if c.Lark.ChatID != "" && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret are required when lark.chat_id is set")
	}

	if c.Watcher.Enabled && c.Storage.WatchDir == "" {
		return fmt.Errorf("storage.watch_dir is required when the watcher is enabled")
	}

	return nil
}

// Rules converts the approval section into the evaluator config
func (c *Config) Rules() (rules.Config, error) {
	threshold, err := decimal.NewFromString(strings.TrimSpace(c.Approval.AmountThreshold))
	if err != nil {
		return rules.Config{}, fmt.Errorf("approval.amount_threshold: invalid amount %q", c.Approval.AmountThreshold)
	}

	return rules.Config{
		AmountThreshold:              threshold,
		MinConfidence:                c.Approval.MinConfidence,
		RequireInvoiceClassification: c.Approval.RequireInvoiceClassification,
		RejectReceiptClassification:  c.Approval.RejectReceiptClassification,
		AllowedBillToNames:           append([]string{}, c.Approval.AllowedBillToNames...),
	}, nil
}

// ResiliencePolicy converts the resilience section into the executor config
func (c *Config) ResiliencePolicy() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.RetryMaxAttempts = c.Resilience.RetryMaxAttempts
	cfg.RetryInitialBackoff = c.Resilience.RetryInitialBackoff
	cfg.RetryMaxBackoff = c.Resilience.RetryMaxBackoff
	cfg.BreakerEnabled = c.Resilience.BreakerEnabled
	cfg.BreakerMinRequests = c.Resilience.BreakerMinRequests
	cfg.BreakerFailureRatio = c.Resilience.BreakerFailureRatio
	cfg.BreakerOpenTimeout = c.Resilience.BreakerOpenTimeout
	return cfg
}

// MaxUploadBytes returns the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}
