/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scan.go
Description: Scan command implementation. Streams one file through the extraction and
scoring pipeline, prints readable strings, and optionally records the sample, its strings
and the execution in the SQLite result store and a JSON scan report.
*/

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kleascm/mala-strings/pkg/config"
	"github.com/kleascm/mala-strings/pkg/logging"
	"github.com/kleascm/mala-strings/pkg/output"
	"github.com/kleascm/mala-strings/pkg/pipeline"
	"github.com/kleascm/mala-strings/pkg/report"
	"github.com/kleascm/mala-strings/pkg/sample"
	"github.com/kleascm/mala-strings/pkg/store"
	"github.com/spf13/viper"
)

// RunScan scans path and writes readable strings to stdout
func RunScan(ctx context.Context, v *viper.Viper, path string, stdout, stderr io.Writer) error {
	cfg, err := LoadConfig(v)
	if err != nil {
		return err
	}

	logger, err := SetupLogging(cfg, stderr)
	if err != nil {
		return err
	}
	defer logger.Close()

	writer, err := output.New(cfg.Format, stdout)
	if err != nil {
		return err
	}

	var rec *recording
	if cfg.DBPath != "" {
		rec, err = startRecording(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rec.close()
	}

	var hasher *sample.Hasher
	if cfg.DBPath != "" || cfg.ReportDir != "" {
		hasher = sample.NewHasher()
	}

	sinks := []pipeline.Sink{writer}
	var taps []io.Writer
	if rec != nil {
		sinks = append(sinks, rec.recorder)
	}
	if hasher != nil {
		taps = append(taps, hasher)
	}
	sinks = append(sinks, pipeline.SinkFunc(func(s pipeline.ScoredString) error {
		logger.LogCandidate(s.Position, s.String, s.Score)
		return nil
	}))

	p := pipeline.New(cfg.PipelineOptions(), logger.GetLogger())

	logger.LogScanStart(path, map[string]interface{}{
		"min_length": cfg.MinLength,
		"min_score":  cfg.MinScore,
		"workers":    cfg.Workers,
		"format":     cfg.Format,
	})

	stats, scanErr := p.ScanFile(ctx, path, pipeline.MultiSink(sinks...), taps...)

	// Records written before a failure stay written
	if err := writer.Flush(); err != nil && scanErr == nil {
		scanErr = fmt.Errorf("failed to write output: %w", err)
	}

	if scanErr != nil {
		logger.LogScanFailed(path, scanErr, nil)
		if rec != nil {
			rec.abort(context.WithoutCancel(ctx), stats)
		}
		return scanErr
	}

	logger.LogScanComplete(path, stats.BytesRead, stats.Candidates, stats.Emitted, stats.Duration, map[string]interface{}{
		"max_score": stats.MaxScore,
	})

	var executionID string
	if rec != nil {
		if err := rec.commit(ctx, hasher.Fingerprint(path), stats); err != nil {
			return err
		}
		executionID = rec.execution.UUID
	}

	if cfg.ReportDir != "" {
		reportPath, err := report.Write(cfg.ReportDir, &report.ScanReport{
			Version:     Version,
			ExecutionID: executionID,
			Sample:      hasher.Fingerprint(path),
			Options:     p.Options(),
			Stats:       *stats,
		})
		if err != nil {
			return err
		}
		logger.Info("Report written", map[string]interface{}{"report": reportPath})
	}

	return nil
}

// recording ties a scan to its rows in the result store
type recording struct {
	store     *store.Store
	execution *store.Execution
	recorder  *store.Recorder
	logger    *logging.Logger
}

func startRecording(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*recording, error) {
	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}

	execution, err := st.StartExecution(ctx, strings.Join(os.Args, " "), cfg.MinScore)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}

	logger.Debug("Store opened", map[string]interface{}{
		"db_path":   st.Path(),
		"execution": execution.UUID,
	})

	return &recording{
		store:     st,
		execution: execution,
		recorder:  st.NewRecorder(),
		logger:    logger,
	}, nil
}

// commit stores the sample, its strings and the execution outcome
func (r *recording) commit(ctx context.Context, fingerprint sample.Fingerprint, stats *pipeline.Stats) error {
	fileID, known, err := r.store.UpsertFile(ctx, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to store sample: %w", err)
	}

	records := r.recorder.Pending()
	if err := r.recorder.Commit(ctx, fileID); err != nil {
		return fmt.Errorf("failed to store strings: %w", err)
	}

	if err := r.store.FinishExecution(ctx, r.execution, fileID, stats); err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}

	r.logger.LogStored(fileID, known, records, map[string]interface{}{
		"sha256":    fingerprint.SHA256,
		"execution": r.execution.UUID,
	})
	return nil
}

// abort closes the execution of a failed scan without storing its strings
func (r *recording) abort(ctx context.Context, stats *pipeline.Stats) {
	if err := r.store.FinishExecution(ctx, r.execution, 0, stats); err != nil {
		r.logger.Warning("Store could not finish execution", map[string]interface{}{
			"execution": r.execution.UUID,
			"error":     err,
		})
	}
}

func (r *recording) close() {
	if err := r.store.Close(); err != nil {
		r.logger.Warning("Store close failed", map[string]interface{}{"error": err})
	}
}
