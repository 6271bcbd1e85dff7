/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: Configuration for mala-strings. Merges defaults, an optional config file,
MALA_* environment variables and bound command-line flags through viper, then validates
the result before any file is touched.
*/

package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/kleascm/mala-strings/pkg/extractor"
	"github.com/kleascm/mala-strings/pkg/logging"
	"github.com/kleascm/mala-strings/pkg/output"
	"github.com/kleascm/mala-strings/pkg/pipeline"
	"github.com/kleascm/mala-strings/pkg/scoring"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable names, e.g. MALA_MIN_SCORE
const EnvPrefix = "MALA"

// Viper keys
const (
	KeyConfigFile      = "config"
	KeyMinLength       = "min_length"
	KeyMinScore        = "min_score"
	KeyMaxStringLength = "max_string_length"
	KeyWorkers         = "workers"
	KeyBufferSize      = "buffer_size"
	KeyFormat          = "format"
	KeyDBPath          = "db_path"
	KeyReportDir       = "report_dir"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyLogDir          = "log_dir"
	KeyLogColors       = "log_colors"
)

// Config holds every tunable of a scan
type Config struct {
	// Extraction and scoring
	MinLength       int `json:"min_length"`        // Shortest printable run considered
	MinScore        int `json:"min_score"`         // Lowest score written out
	MaxStringLength int `json:"max_string_length"` // Longer strings score 0
	Workers         int `json:"workers"`           // Scoring goroutines
	BufferSize      int `json:"buffer_size"`       // Read chunk size

	// Output
	Format    string `json:"format"`     // jsonl or table
	DBPath    string `json:"db_path"`    // SQLite result store, empty disables it
	ReportDir string `json:"report_dir"` // Directory for JSON scan reports, empty disables them

	// Logging
	LogLevel  string `json:"log_level"`  // debug, info, warn, error
	LogFormat string `json:"log_format"` // text, json, custom
	LogDir    string `json:"log_dir"`    // Directory for log files, empty for stderr only
	LogColors string `json:"log_colors"` // auto, always, never
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyMinLength, extractor.DefaultMinLength)
	v.SetDefault(KeyMinScore, scoring.DefaultMinScore)
	v.SetDefault(KeyMaxStringLength, scoring.DefaultMaxLength)
	v.SetDefault(KeyWorkers, 1)
	v.SetDefault(KeyBufferSize, extractor.DefaultBufferSize)
	v.SetDefault(KeyFormat, string(output.FormatJSONL))
	v.SetDefault(KeyDBPath, "")
	v.SetDefault(KeyReportDir, "")
	v.SetDefault(KeyLogLevel, string(logging.LogLevelWarning))
	v.SetDefault(KeyLogFormat, string(logging.LogFormatText))
	v.SetDefault(KeyLogDir, "")
	v.SetDefault(KeyLogColors, "auto")
}

// Load reads the optional config file and environment into v and returns the
// validated configuration
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	if configFile := v.GetString(KeyConfigFile); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		MinLength:       v.GetInt(KeyMinLength),
		MinScore:        v.GetInt(KeyMinScore),
		MaxStringLength: v.GetInt(KeyMaxStringLength),
		Workers:         v.GetInt(KeyWorkers),
		BufferSize:      v.GetInt(KeyBufferSize),
		Format:          strings.ToLower(v.GetString(KeyFormat)),
		DBPath:          v.GetString(KeyDBPath),
		ReportDir:       v.GetString(KeyReportDir),
		LogLevel:        strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:       strings.ToLower(v.GetString(KeyLogFormat)),
		LogDir:          v.GetString(KeyLogDir),
		LogColors:       strings.ToLower(v.GetString(KeyLogColors)),
	}

	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for out-of-range values
func (c *Config) Validate() error {
	if c.MinLength < 1 {
		return fmt.Errorf("min_length must be positive, got %d", c.MinLength)
	}
	if c.MaxStringLength < 1 {
		return fmt.Errorf("max_string_length must be positive, got %d", c.MaxStringLength)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}

	valid := false
	for _, f := range output.Formats() {
		if c.Format == string(f) {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unsupported output format: %s", c.Format)
	}

	switch c.LogColors {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("log_colors must be auto, always or never, got %s", c.LogColors)
	}

	logConfig := c.LoggerConfig(false)
	return logConfig.Validate()
}

// PipelineOptions converts the configuration into pipeline options
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		MinLength:       c.MinLength,
		MinScore:        c.MinScore,
		MaxStringLength: c.MaxStringLength,
		Workers:         c.Workers,
		BufferSize:      c.BufferSize,
	}
}

// LoggerConfig converts the configuration into logger settings. terminal says
// whether stderr is a terminal and is consulted when colours are on auto.
func (c *Config) LoggerConfig(terminal bool) *logging.LoggerConfig {
	colors := terminal
	switch c.LogColors {
	case "always":
		colors = true
	case "never":
		colors = false
	}

	return &logging.LoggerConfig{
		Level:     logging.LogLevel(c.LogLevel),
		Format:    logging.LogFormat(c.LogFormat),
		OutputDir: c.LogDir,
		MaxFiles:  logging.DefaultConfig().MaxFiles,
		Timestamp: true,
		Caller:    false,
		Colors:    colors,
	}
}
