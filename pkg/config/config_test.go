/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config_test.go
Description: Tests for configuration loading. Covers defaults, environment overrides,
config files, flag precedence and validation.
*/

package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/kleascm/mala-strings/pkg/config"
	"github.com/kleascm/mala-strings/pkg/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.MinLength)
	assert.Equal(t, 40, cfg.MinScore)
	assert.Equal(t, 2600, cfg.MaxStringLength)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 64*1024, cfg.BufferSize)
	assert.Equal(t, "jsonl", cfg.Format)
	assert.Empty(t, cfg.DBPath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "auto", cfg.LogColors)

	opts := cfg.PipelineOptions()
	assert.Equal(t, 6, opts.MinLength)
	assert.Equal(t, 40, opts.MinScore)
	assert.Equal(t, 2600, opts.MaxStringLength)
	assert.Equal(t, 1, opts.Workers)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("MALA_MIN_SCORE", "75")
	t.Setenv("MALA_FORMAT", "TABLE")
	t.Setenv("MALA_WORKERS", "0")

	cfg, err := config.Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.MinScore)
	assert.Equal(t, "table", cfg.Format)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mala.yaml")
	content := "min_score: 60\nmin_length: 8\nlog_level: debug\ndb_path: /tmp/mala.db\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	v := viper.New()
	v.Set(config.KeyConfigFile, path)

	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.MinScore)
	assert.Equal(t, 8, cfg.MinLength)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/mala.db", cfg.DBPath)

	v = viper.New()
	v.Set(config.KeyConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = config.Load(v)
	assert.Error(t, err)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("MALA_MIN_SCORE", "75")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("min-score", 0, "")
	require.NoError(t, flags.Parse([]string{"--min-score", "90"}))

	v := viper.New()
	require.NoError(t, v.BindPFlag(config.KeyMinScore, flags.Lookup("min-score")))

	cfg, err := config.Load(v)
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.MinScore)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		key   string
		value interface{}
	}{
		{config.KeyMinLength, 0},
		{config.KeyMaxStringLength, -1},
		{config.KeyWorkers, -2},
		{config.KeyBufferSize, 0},
		{config.KeyFormat, "csv"},
		{config.KeyLogLevel, "loud"},
		{config.KeyLogFormat, "xml"},
		{config.KeyLogColors, "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)
			_, err := config.Load(v)
			assert.Error(t, err)
		})
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg, err := config.Load(viper.New())
	require.NoError(t, err)

	lc := cfg.LoggerConfig(true)
	assert.Equal(t, logging.LogLevelWarning, lc.Level)
	assert.Equal(t, logging.LogFormatText, lc.Format)
	assert.True(t, lc.Colors)
	assert.False(t, cfg.LoggerConfig(false).Colors)

	cfg.LogColors = "never"
	assert.False(t, cfg.LoggerConfig(true).Colors)
	cfg.LogColors = "always"
	assert.True(t, cfg.LoggerConfig(false).Colors)
}
