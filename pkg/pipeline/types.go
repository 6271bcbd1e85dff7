/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: types.go
Description: Core types for the string scanning pipeline. Defines scored output records,
sinks that consume them, pipeline options with their defaults, run statistics, and the
error type reported when a target file cannot be opened or read.
*/

package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/kleascm/mala-strings/pkg/extractor"
	"github.com/kleascm/mala-strings/pkg/scoring"
)

// ScoredString is one readable string found in the input
// This is the externally visible output unit of a scan
type ScoredString struct {
	Position int64  `json:"position"` // Byte offset of the first character
	String   string `json:"string"`   // Extracted text
	Score    int    `json:"score"`    // Readability score
}

// Sink receives scored strings in increasing position order
type Sink interface {
	Write(s ScoredString) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(s ScoredString) error

// Write calls f(s)
func (f SinkFunc) Write(s ScoredString) error {
	return f(s)
}

// multiSink fans each record out to several sinks
type multiSink []Sink

func (m multiSink) Write(s ScoredString) error {
	for _, sink := range m {
		if err := sink.Write(s); err != nil {
			return err
		}
	}
	return nil
}

// MultiSink returns a sink that writes every record to each of sinks in order.
// Nil sinks are skipped.
func MultiSink(sinks ...Sink) Sink {
	all := make(multiSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			all = append(all, sink)
		}
	}
	return all
}

// Collector accumulates records in memory
type Collector struct {
	Records []ScoredString
}

// Write appends s
func (c *Collector) Write(s ScoredString) error {
	c.Records = append(c.Records, s)
	return nil
}

// Options controls extraction and filtering
type Options struct {
	MinLength       int `json:"min_length"`        // Shortest run considered
	MinScore        int `json:"min_score"`         // Lowest score emitted
	MaxStringLength int `json:"max_string_length"` // Longer strings score 0
	Workers         int `json:"workers"`           // Scoring goroutines (1 = inline)
	BufferSize      int `json:"buffer_size"`       // Read chunk size in bytes
}

// DefaultOptions returns the standard scan settings
func DefaultOptions() Options {
	return Options{
		MinLength:       extractor.DefaultMinLength,
		MinScore:        scoring.DefaultMinScore,
		MaxStringLength: scoring.DefaultMaxLength,
		Workers:         1,
		BufferSize:      extractor.DefaultBufferSize,
	}
}

// withDefaults fills unset fields. MinScore is left alone since zero and
// negative cutoffs are meaningful.
func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.MinLength <= 0 {
		o.MinLength = defaults.MinLength
	}
	if o.MaxStringLength <= 0 {
		o.MaxStringLength = defaults.MaxStringLength
	}
	if o.Workers <= 0 {
		o.Workers = defaults.Workers
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaults.BufferSize
	}
	return o
}

// Stats summarizes a completed run
type Stats struct {
	BytesRead  int64         `json:"bytes_read"` // Bytes consumed from the input
	Candidates int64         `json:"candidates"` // Runs meeting the minimum length
	Emitted    int64         `json:"emitted"`    // Records that passed the score filter
	MaxScore   int           `json:"max_score"`  // Highest score seen among candidates
	Duration   time.Duration `json:"duration"`   // Wall time of the run
}

// ScanError reports a failure to open or read a scan target
type ScanError struct {
	Path   string // Target path, empty for bare readers
	Offset int64  // Bytes successfully consumed before the failure
	Err    error
}

func (e *ScanError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("read error at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("%s: read error at offset %d: %v", e.Path, e.Offset, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// IsIOError reports whether err came from opening or reading the input
func IsIOError(err error) bool {
	var scanErr *ScanError
	return errors.As(err, &scanErr)
}
