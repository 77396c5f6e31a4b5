package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the root configuration object, assembled once at startup and
// validated eagerly before any pipeline work begins.
type Config struct {
	Analysis AnalysisConfig `mapstructure:"analysis"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Fixer    FixerConfig    `mapstructure:"fixer"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggerConfig   `mapstructure:"logging"`
}

// AnalysisConfig controls which files are scanned and where the quality
// thresholds sit.
type AnalysisConfig struct {
	MaxComplexity           int      `mapstructure:"max_complexity"`
	MinMaintainabilityIndex float64  `mapstructure:"min_maintainability_index"`
	LintThreshold           float64  `mapstructure:"lint_threshold"`
	LintCommand             string   `mapstructure:"lint_command"`
	MaxFileSize             int64    `mapstructure:"max_file_size"`
	Extensions              []string `mapstructure:"extensions"`
	ExcludedDirs            []string `mapstructure:"excluded_dirs"`
}

// LLMConfig configures the inference and embedding backend.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"` // "gemini" or "none" for the offline stub.
	Model           string        `mapstructure:"model"`
	FastModel       string        `mapstructure:"fast_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	APIKey          string        `mapstructure:"api_key"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
}

// FixerConfig bounds the fix loop.
type FixerConfig struct {
	MaxRetries            int     `mapstructure:"max_retries"`
	Concurrency           int     `mapstructure:"concurrency"`
	DryRun                bool    `mapstructure:"dry_run"`
	MinConfidence         float64 `mapstructure:"min_confidence"`
	MaxChangesPerCommit   int     `mapstructure:"max_changes_per_commit"`
	CommitPartialOnCancel bool    `mapstructure:"commit_partial_on_cancel"`
}

// PathsConfig locates the durable artifacts: backups, the audit log, and the
// context-index cache.
type PathsConfig struct {
	BackupDir string `mapstructure:"backup_dir"`
	AuditLog  string `mapstructure:"audit_log"`
	IndexDB   string `mapstructure:"index_db"`
}

// ServerConfig configures the read-only dashboard API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggerConfig configures the application logger (operator diagnostics, not
// the audit trail).
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // "console" or "json".
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
	AddSource   bool   `mapstructure:"add_source"`
	ServiceName string `mapstructure:"service_name"`
}

// SetDefaults registers the default value for every key so a bare run works
// without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("analysis.max_complexity", 10)
	v.SetDefault("analysis.min_maintainability_index", 20.0)
	v.SetDefault("analysis.lint_threshold", 7.0)
	v.SetDefault("analysis.lint_command", "")
	v.SetDefault("analysis.max_file_size", int64(512*1024))
	v.SetDefault("analysis.extensions", []string{".go", ".py", ".js"})
	v.SetDefault("analysis.excluded_dirs", []string{".git", "vendor", "node_modules", "__pycache__", ".suture"})

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-pro")
	v.SetDefault("llm.fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.embedding_model", "gemini-embedding-001")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_output_tokens", 8192)
	v.SetDefault("llm.request_timeout", 90*time.Second)
	v.SetDefault("llm.requests_per_sec", 1.0)

	v.SetDefault("fixer.max_retries", 2)
	v.SetDefault("fixer.concurrency", 4)
	v.SetDefault("fixer.dry_run", false)
	v.SetDefault("fixer.min_confidence", 0.5)
	v.SetDefault("fixer.max_changes_per_commit", 10)
	v.SetDefault("fixer.commit_partial_on_cancel", false)

	v.SetDefault("paths.backup_dir", ".suture/backups")
	v.SetDefault("paths.audit_log", ".suture/audit.jsonl")
	v.SetDefault("paths.index_db", ".suture/index.db")

	v.SetDefault("server.port", 8845)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.log_file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.service_name", "suture")
}

// NewConfigFromViper unmarshals, expands, and validates the configuration.
// Any validation failure here aborts the run before pipeline work starts.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// The API key is a secret and comes from the environment, never a file.
	if err := v.BindEnv("llm.api_key", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key env var: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Paths.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section and returns the first failure.
func (c *Config) Validate() error {
	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Fixer.Validate(); err != nil {
		return fmt.Errorf("fixer: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (c *AnalysisConfig) Validate() error {
	if c.MaxComplexity < 1 {
		return fmt.Errorf("max_complexity must be at least 1, got %d", c.MaxComplexity)
	}
	if c.MinMaintainabilityIndex < 0 || c.MinMaintainabilityIndex > 100 {
		return fmt.Errorf("min_maintainability_index must be in [0,100], got %f", c.MinMaintainabilityIndex)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize)
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("at least one file extension is required")
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	return nil
}

func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case "gemini", "none":
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	if c.Provider == "gemini" && c.Model == "" {
		return fmt.Errorf("model is required for provider gemini")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0,2], got %f", c.Temperature)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.RequestsPerSec <= 0 {
		return fmt.Errorf("requests_per_sec must be positive, got %f", c.RequestsPerSec)
	}
	return nil
}

func (c *FixerConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in [0,1], got %f", c.MinConfidence)
	}
	if c.MaxChangesPerCommit < 1 {
		return fmt.Errorf("max_changes_per_commit must be at least 1, got %d", c.MaxChangesPerCommit)
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be in [1,65535], got %d", c.Port)
	}
	return nil
}

// expand resolves ~ in the durable-artifact paths.
func (p *PathsConfig) expand() error {
	for _, field := range []*string{&p.BackupDir, &p.AuditLog, &p.IndexDB} {
		if *field == "" {
			continue
		}
		expanded, err := homedir.Expand(*field)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *field, err)
		}
		*field = filepath.Clean(expanded)
	}
	return nil
}
