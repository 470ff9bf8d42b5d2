package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the application configuration
type Config struct {
	LLM     LLMConfig     `json:"llm"`
	Exec    ExecConfig    `json:"exec"`
	Cache   CacheConfig   `json:"cache"`
	History HistoryConfig `json:"history"`
	Jobs    JobsConfig    `json:"jobs"`
	Logging LoggingConfig `json:"logging"`
	Debug   DebugConfig   `json:"debug"`
}

// LLMConfig configures the completion provider used for program synthesis
type LLMConfig struct {
	Provider          string  `json:"provider"            env:"LLM_PROVIDER"            envDefault:"none"` // anthropic, openai, ollama, none
	Model             string  `json:"model"               env:"LLM_MODEL"               envDefault:""`
	Endpoint          string  `json:"endpoint"            env:"LLM_ENDPOINT"            envDefault:""`
	APIKeyEnv         string  `json:"api_key_env"         env:"LLM_API_KEY_ENV"         envDefault:""`
	MaxTokens         int     `json:"max_tokens"          env:"LLM_MAX_TOKENS"          envDefault:"1500"`
	Temperature       float64 `json:"temperature"         env:"LLM_TEMPERATURE"         envDefault:"0.1"`
	Timeout           string  `json:"timeout"             env:"LLM_TIMEOUT"             envDefault:"30s"`
	RequestsPerMinute int     `json:"requests_per_minute" env:"LLM_REQUESTS_PER_MINUTE" envDefault:"50"`
	RetryAttempts     int     `json:"retry_attempts"      env:"LLM_RETRY_ATTEMPTS"      envDefault:"3"`
	RetryDelay        string  `json:"retry_delay"         env:"LLM_RETRY_DELAY"         envDefault:"1s"`
}

// ExecConfig bounds sandboxed program execution
type ExecConfig struct {
	Timeout       string `json:"timeout"         env:"EXEC_TIMEOUT"         envDefault:"5s"`
	MaxSteps      int64  `json:"max_steps"       env:"EXEC_MAX_STEPS"       envDefault:"5000000"`
	MaxResultRows int    `json:"max_result_rows" env:"EXEC_MAX_RESULT_ROWS" envDefault:"500000"`
	RowLimit      int    `json:"row_limit"       env:"EXEC_ROW_LIMIT"       envDefault:"100"`
	JobRowLimit   int    `json:"job_row_limit"   env:"EXEC_JOB_ROW_LIMIT"   envDefault:"1000"`
	SampleRows    int    `json:"sample_rows"     env:"EXEC_SAMPLE_ROWS"     envDefault:"5"`
}

// CacheConfig bounds the in-memory table cache
type CacheConfig struct {
	MaxEntryMB int `json:"max_entry_mb" env:"CACHE_MAX_ENTRY_MB" envDefault:"50"`
	MaxTotalMB int `json:"max_total_mb" env:"CACHE_MAX_TOTAL_MB" envDefault:"256"`
}

// HistoryConfig configures the session history store
type HistoryConfig struct {
	Enabled bool   `json:"enabled" env:"HISTORY_ENABLED" envDefault:"true"`
	Path    string `json:"path"    env:"HISTORY_PATH"    envDefault:"~/.config/tabiq/history.db"`
}

// JobsConfig configures the background job runner
type JobsConfig struct {
	Workers   int `json:"workers"    env:"JOBS_WORKERS"    envDefault:"4"`
	QueueSize int `json:"queue_size" env:"JOBS_QUEUE_SIZE" envDefault:"16"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"  envDefault:"info"`   // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT" envDefault:"text"`   // text, json
	Output string `json:"output" env:"LOG_OUTPUT" envDefault:"stderr"` // stdout, stderr, file
	File   string `json:"file"   env:"LOG_FILE"   envDefault:"~/.config/tabiq/logs/tabiq.log"`
}

// DebugConfig represents debug configuration
type DebugConfig struct {
	Enabled bool `json:"enabled" env:"DEBUG"   envDefault:"false"`
	Verbose bool `json:"verbose" env:"VERBOSE" envDefault:"false"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	config := &Config{}

	// Load from config file if it exists
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Apply environment variable overrides (also sets defaults)
	if err := env.ParseWithOptions(config, env.Options{
		Prefix: "TABIQ_",
	}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	// Apply command-line flag overrides
	if flagOverrides != nil {
		applyFlagOverrides(config, flagOverrides)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) {
	for key, value := range overrides {
		switch key {
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "verbose":
			if b, ok := value.(bool); ok {
				config.Debug.Verbose = b
			}
		case "debug":
			if b, ok := value.(bool); ok {
				config.Debug.Enabled = b
			}
		case "provider":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Provider = str
			}
		case "model":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Model = str
			}
		case "history-path":
			if str, ok := value.(string); ok && str != "" {
				config.History.Path = str
			}
		}
	}
}

// mergeConfigs merges source configuration into target configuration
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if s.Kind() == reflect.Bool {
			t.Set(s)
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	validProviders := map[string]bool{
		"anthropic": true, "openai": true, "ollama": true, "none": true,
	}
	if !validProviders[strings.ToLower(config.LLM.Provider)] {
		return fmt.Errorf(
			"invalid llm provider: %s (must be anthropic, openai, ollama, or none)",
			config.LLM.Provider,
		)
	}

	if _, err := time.ParseDuration(config.LLM.Timeout); err != nil {
		return fmt.Errorf("invalid llm timeout: %s", config.LLM.Timeout)
	}

	if _, err := time.ParseDuration(config.LLM.RetryDelay); err != nil {
		return fmt.Errorf("invalid llm retry delay: %s", config.LLM.RetryDelay)
	}

	if _, err := time.ParseDuration(config.Exec.Timeout); err != nil {
		return fmt.Errorf("invalid exec timeout: %s", config.Exec.Timeout)
	}

	if config.LLM.RequestsPerMinute <= 0 {
		return fmt.Errorf(
			"llm requests per minute must be positive: %d",
			config.LLM.RequestsPerMinute,
		)
	}

	if config.Exec.MaxSteps <= 0 {
		return fmt.Errorf("exec max steps must be positive: %d", config.Exec.MaxSteps)
	}

	if config.Exec.RowLimit <= 0 || config.Exec.JobRowLimit <= 0 {
		return fmt.Errorf(
			"row limits must be positive: %d / %d",
			config.Exec.RowLimit, config.Exec.JobRowLimit,
		)
	}

	if config.Cache.MaxEntryMB <= 0 || config.Cache.MaxTotalMB < config.Cache.MaxEntryMB {
		return fmt.Errorf(
			"cache budget invalid: entry %dMB, total %dMB",
			config.Cache.MaxEntryMB, config.Cache.MaxTotalMB,
		)
	}

	if config.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs workers must be positive: %d", config.Jobs.Workers)
	}

	return nil
}

// LLMTimeout returns the parsed completion-call timeout
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 30 * time.Second
	}

	return d
}

// LLMRetryDelay returns the parsed retry backoff base
func (c *Config) LLMRetryDelay() time.Duration {
	d, err := time.ParseDuration(c.LLM.RetryDelay)
	if err != nil {
		return time.Second
	}

	return d
}

// ExecTimeout returns the parsed sandbox wall-clock budget
func (c *Config) ExecTimeout() time.Duration {
	d, err := time.ParseDuration(c.Exec.Timeout)
	if err != nil {
		return 5 * time.Second
	}

	return d
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv("TABIQ_CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "tabiq", "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.History.Path = expandPath(c.History.Path)
	c.Logging.File = expandPath(c.Logging.File)
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".config/tabiq"
	}

	return filepath.Join(homeDir, ".config", "tabiq")
}

// GetLogDir returns the log directory
func GetLogDir() string {
	return filepath.Join(GetConfigDir(), "logs")
}

// EnsureDirectories creates necessary directories for the configuration
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.History.Path),
		filepath.Dir(c.Logging.File),
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
