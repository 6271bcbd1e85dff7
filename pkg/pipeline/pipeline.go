/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: pipeline.go
Description: Drives a scan from raw bytes to scored records. Pulls candidates from the
streaming extractor, scores them inline or on a bounded errgroup worker pool, filters by
minimum score, and hands survivors to a sink strictly in offset order.
*/

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kleascm/mala-strings/pkg/extractor"
	"github.com/kleascm/mala-strings/pkg/scoring"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// batchPerWorker is how many candidates each worker gets per scoring round
const batchPerWorker = 256

// Pipeline extracts, scores and filters strings from a byte stream
type Pipeline struct {
	options Options
	scorer  *scoring.Scorer
	logger  *logrus.Logger
}

// New creates a pipeline. A nil logger discards log output.
func New(options Options, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	options = options.withDefaults()

	return &Pipeline{
		options: options,
		scorer:  scoring.NewScorer(options.MaxStringLength),
		logger:  logger,
	}
}

// Options returns the effective options after defaults were applied
func (p *Pipeline) Options() Options {
	return p.options
}

// Run scans r to the end and writes every string scoring at least MinScore to sink
func (p *Pipeline) Run(ctx context.Context, r io.Reader, sink Sink) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	scanner := extractor.NewScanner(r, p.options.MinLength, extractor.WithBufferSize(p.options.BufferSize))

	var err error
	if p.options.Workers > 1 {
		err = p.runParallel(ctx, scanner, sink, stats)
	} else {
		err = p.runSequential(ctx, scanner, sink, stats)
	}

	stats.BytesRead = scanner.Offset()
	stats.Duration = time.Since(start)

	if err != nil {
		return stats, err
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return stats, toScanError("", scanErr)
	}

	p.logger.WithFields(logrus.Fields{
		"bytes_read": stats.BytesRead,
		"candidates": stats.Candidates,
		"emitted":    stats.Emitted,
		"duration":   stats.Duration,
	}).Debug("Scan finished")

	return stats, nil
}

func (p *Pipeline) runSequential(ctx context.Context, scanner *extractor.Scanner, sink Sink, stats *Stats) error {
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		candidate := scanner.Candidate()
		stats.Candidates++

		record := p.score(candidate)
		if err := p.deliver(record, sink, stats); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runParallel(ctx context.Context, scanner *extractor.Scanner, sink Sink, stats *Stats) error {
	batchSize := p.options.Workers * batchPerWorker
	batch := make([]extractor.Candidate, 0, batchSize)
	results := make([]ScoredString, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.options.Workers)
		for i, candidate := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = p.score(candidate)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// Scoring finished out of order; delivery happens in extraction order
		for i := range batch {
			if err := p.deliver(results[i], sink, stats); err != nil {
				return err
			}
		}
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch = append(batch, scanner.Candidate())
		stats.Candidates++

		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if scanner.Err() != nil {
		// The pending batch is dropped when the stream breaks
		return nil
	}
	return flush()
}

// score turns a candidate into a record
func (p *Pipeline) score(candidate extractor.Candidate) ScoredString {
	text := candidate.String()
	return ScoredString{
		Position: candidate.Offset,
		String:   text,
		Score:    p.scorer.Score(text),
	}
}

// deliver applies the score filter and forwards survivors
func (p *Pipeline) deliver(record ScoredString, sink Sink, stats *Stats) error {
	if record.Score > stats.MaxScore {
		stats.MaxScore = record.Score
	}
	if record.Score < p.options.MinScore {
		return nil
	}

	if p.logger.IsLevelEnabled(logrus.TraceLevel) {
		p.logger.WithFields(logrus.Fields{
			"position": record.Position,
			"score":    record.Score,
			"length":   len(record.String),
		}).Trace("Candidate accepted")
	}

	if err := sink.Write(record); err != nil {
		return fmt.Errorf("failed to write record at position %d: %w", record.Position, err)
	}
	stats.Emitted++
	return nil
}

// ScanFile opens path, scans it and closes it. Every byte read is also copied
// to taps, which lets callers fingerprint the file without a second pass.
func (p *Pipeline) ScanFile(ctx context.Context, path string, sink Sink, taps ...io.Writer) (*Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ScanError{Path: path, Err: err}
	}
	defer file.Close()

	var reader io.Reader = file
	if len(taps) > 0 {
		reader = io.TeeReader(file, io.MultiWriter(taps...))
	}

	p.logger.WithFields(logrus.Fields{
		"path":       path,
		"min_length": p.options.MinLength,
		"min_score":  p.options.MinScore,
		"workers":    p.options.Workers,
	}).Debug("Scan started")

	stats, err := p.Run(ctx, reader, sink)
	if err != nil {
		var scanErr *ScanError
		if errors.As(err, &scanErr) && scanErr.Path == "" {
			scanErr.Path = path
		}
		return stats, err
	}

	return stats, nil
}

// toScanError converts extractor read failures into ScanError
func toScanError(path string, err error) error {
	var readErr *extractor.ReadError
	if errors.As(err, &readErr) {
		return &ScanError{Path: path, Offset: readErr.Offset, Err: readErr.Err}
	}
	return &ScanError{Path: path, Err: err}
}
