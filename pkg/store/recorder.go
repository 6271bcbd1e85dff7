/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: recorder.go
Description: Pipeline sink that persists scored strings. Records are buffered during the
scan and written in batched transactions once the sample's file id is known, so the
input only has to be read once.
*/

package store

import (
	"context"
	"fmt"

	"github.com/kleascm/mala-strings/pkg/pipeline"
)

// defaultBatchSize bounds the rows written per transaction
const defaultBatchSize = 256

// Recorder buffers scan output for a single sample
type Recorder struct {
	store     *Store
	records   []pipeline.ScoredString
	batchSize int
}

// NewRecorder creates a recorder bound to s
func (s *Store) NewRecorder() *Recorder {
	return &Recorder{store: s, batchSize: defaultBatchSize}
}

// Write buffers record
func (r *Recorder) Write(record pipeline.ScoredString) error {
	r.records = append(r.records, record)
	return nil
}

// Pending returns the number of buffered records
func (r *Recorder) Pending() int {
	return len(r.records)
}

// Commit stores all buffered records against fileID. Strings already known keep
// their first score; instances are deduplicated per file and address.
func (r *Recorder) Commit(ctx context.Context, fileID int64) error {
	for start := 0; start < len(r.records); start += r.batchSize {
		end := start + r.batchSize
		if end > len(r.records) {
			end = len(r.records)
		}
		if err := r.commitBatch(ctx, fileID, r.records[start:end]); err != nil {
			return err
		}
	}

	r.records = r.records[:0]
	return nil
}

func (r *Recorder) commitBatch(ctx context.Context, fileID int64, batch []pipeline.ScoredString) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin string tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	insertString, err := tx.PrepareContext(ctx, "INSERT INTO strings (value, score) VALUES (?, ?) ON CONFLICT(value) DO NOTHING")
	if err != nil {
		return fmt.Errorf("prepare string insert: %w", err)
	}
	defer insertString.Close()

	lookupString, err := tx.PrepareContext(ctx, "SELECT id FROM strings WHERE value = ?")
	if err != nil {
		return fmt.Errorf("prepare string lookup: %w", err)
	}
	defer lookupString.Close()

	insertInstance, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO string_instances (file_id, string_id, address) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare instance insert: %w", err)
	}
	defer insertInstance.Close()

	for _, record := range batch {
		if _, err := insertString.ExecContext(ctx, record.String, record.Score); err != nil {
			return fmt.Errorf("insert string at %d: %w", record.Position, err)
		}

		var stringID int64
		if err := lookupString.QueryRowContext(ctx, record.String).Scan(&stringID); err != nil {
			return fmt.Errorf("lookup string at %d: %w", record.Position, err)
		}

		if _, err := insertInstance.ExecContext(ctx, fileID, stringID, record.Position); err != nil {
			return fmt.Errorf("insert instance at %d: %w", record.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit strings: %w", err)
	}
	return nil
}
