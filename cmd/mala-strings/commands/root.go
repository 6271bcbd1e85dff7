/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: root.go
Description: Root command for mala-strings. Declares every flag, binds it into viper and
validates that exactly one file was given before anything is opened.
*/

package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/kleascm/mala-strings/pkg/config"
	"github.com/kleascm/mala-strings/pkg/extractor"
	"github.com/kleascm/mala-strings/pkg/scoring"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is reported by --version
const Version = "1.0.0"

// ErrUsage is returned when the command is not given exactly one file
var ErrUsage = errors.New("expected exactly one file argument")

// flagBindings maps command-line flags to configuration keys
var flagBindings = map[string]string{
	"config":      config.KeyConfigFile,
	"min-length":  config.KeyMinLength,
	"min-score":   config.KeyMinScore,
	"max-length":  config.KeyMaxStringLength,
	"workers":     config.KeyWorkers,
	"buffer-size": config.KeyBufferSize,
	"format":      config.KeyFormat,
	"db":          config.KeyDBPath,
	"report-dir":  config.KeyReportDir,
	"log-level":   config.KeyLogLevel,
	"log-format":  config.KeyLogFormat,
	"log-dir":     config.KeyLogDir,
	"log-colors":  config.KeyLogColors,
}

// NewRootCommand builds the mala-strings command. Records go to stdout; usage,
// logs and errors go to stderr.
func NewRootCommand(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mala-strings [flags] <file>",
		Short: "Extract and rank readable strings from binary files",
		Long: `mala-strings scans a file for runs of printable ASCII, scores each run by how much
it resembles readable text, and prints the runs that score at or above the threshold as
one JSON object per line: {"position":...,"string":...,"score":...}.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
				return fmt.Errorf("%w, got %d", ErrUsage, len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunScan(cmd.Context(), v, args[0], stdout, stderr)
		},
	}
	rootCmd.SetErr(stderr)

	flags := rootCmd.Flags()
	flags.String("config", "", "Configuration file path")

	// Extraction and scoring
	flags.Int("min-length", extractor.DefaultMinLength, "Shortest printable run to consider")
	flags.Int("min-score", scoring.DefaultMinScore, "Lowest readability score to print")
	flags.Int("max-length", scoring.DefaultMaxLength, "Strings longer than this score 0")
	flags.Int("workers", 1, "Scoring goroutines (0 = one per CPU)")
	flags.Int("buffer-size", extractor.DefaultBufferSize, "Read buffer size in bytes")

	// Output
	flags.String("format", "jsonl", "Output format (jsonl, table)")
	flags.String("db", "", "SQLite database to record results in")
	flags.String("report-dir", "", "Write a JSON scan report to this directory")

	// Logging
	flags.String("log-level", "warn", "Logging level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json, custom)")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.String("log-colors", "auto", "Colour log output (auto, always, never)")

	for flag, key := range flagBindings {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	return rootCmd
}
