/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report.go
Description: Scan reports for mala-strings. Writes a timestamped JSON summary of each scan
(sample fingerprint, effective options and pipeline statistics) into a report directory
for later comparison across runs.
*/

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kleascm/mala-strings/pkg/pipeline"
	"github.com/kleascm/mala-strings/pkg/sample"
)

// ScanReport summarizes one completed scan
type ScanReport struct {
	Version     string             `json:"version"`
	ExecutionID string             `json:"execution_id,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
	Sample      sample.Fingerprint `json:"sample"`
	Options     pipeline.Options   `json:"options"`
	Stats       pipeline.Stats     `json:"stats"`
}

// Write stores r under dir as <timestamp>_<basename>_v<version>.json and returns
// the file path
func Write(dir string, r *ScanReport) (string, error) {
	if r == nil {
		return "", fmt.Errorf("nil report")
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now()
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	// e.g. 2024-06-11_01-30-00_sample.exe_v1.0.0.json
	timestamp := r.GeneratedAt.Format("2006-01-02_15-04-05")
	filename := fmt.Sprintf("%s_%s_v%s.json", timestamp, safeName(r.Sample.Basename), r.Version)
	path := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}

// Read loads a report written by Write
func Read(path string) (*ScanReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r ScanReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, nil
}

func safeName(name string) string {
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "stdin"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, name)
}
