/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared helpers for mala-strings commands. Loads configuration and sets up
logging on standard error.
*/

package commands

import (
	"fmt"
	"io"

	"github.com/kleascm/mala-strings/pkg/config"
	"github.com/kleascm/mala-strings/pkg/logging"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration from flags, files and environment
func LoadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SetupLogging creates the logger described by cfg, writing to stderr
func SetupLogging(cfg *config.Config, stderr io.Writer) (*logging.Logger, error) {
	logger, err := logging.NewLogger(cfg.LoggerConfig(logging.IsTerminal(stderr)), stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return logger, nil
}
