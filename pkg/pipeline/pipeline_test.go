/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: pipeline_test.go
Description: Tests for the scan pipeline. Covers score filtering, ordering under parallel
scoring, sink failures, cancellation, file scanning with taps, and I/O error reporting.
*/

package pipeline_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/kleascm/mala-strings/pkg/pipeline"
	"github.com/kleascm/mala-strings/pkg/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleBinary mixes readable strings with binary noise and short runs
func sampleBinary() []byte {
	var data []byte
	data = append(data, 0x7F, 'E', 'L', 'F', 0x02, 0x01, 0x01, 0x00)
	data = append(data, bytes.Repeat([]byte{0x00}, 24)...)
	data = append(data, "Hello, World! This is a test."...)
	data = append(data, 0x00, 0x00)
	data = append(data, "abcde"...)
	data = append(data, 0x00)
	data = append(data, "GetProcAddress"...)
	data = append(data, 0x00, 0xFF, 0xFE)
	data = append(data, strings.Repeat("A", 3000)...)
	data = append(data, 0x90, 0x90)
	data = append(data, "kernel32.dll"...)
	return data
}

// manyStrings builds a stream with n distinct candidates
func manyStrings(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.WriteString("string number ")
		buf.WriteString(strings.Repeat("x", i%7))
		buf.WriteByte(byte('a' + i%26))
		buf.WriteByte(0x00)
	}
	return buf.Bytes()
}

func TestDefaultOptions(t *testing.T) {
	options := pipeline.DefaultOptions()
	assert.Equal(t, 6, options.MinLength)
	assert.Equal(t, 40, options.MinScore)
	assert.Equal(t, 2600, options.MaxStringLength)
	assert.Equal(t, 1, options.Workers)

	p := pipeline.New(pipeline.Options{MinScore: 10}, nil)
	effective := p.Options()
	assert.Equal(t, 6, effective.MinLength)
	assert.Equal(t, 10, effective.MinScore)
	assert.Equal(t, 2600, effective.MaxStringLength)
	assert.Greater(t, effective.BufferSize, 0)
}

func TestRunFiltersAndOrders(t *testing.T) {
	p := pipeline.New(pipeline.DefaultOptions(), nil)
	collector := &pipeline.Collector{}

	stats, err := p.Run(context.Background(), bytes.NewReader(sampleBinary()), collector)
	require.NoError(t, err)

	// Oversized run scores 0 and is filtered, "abcde" is too short
	require.Len(t, collector.Records, 3)
	assert.Equal(t, pipeline.ScoredString{Position: 32, String: "Hello, World! This is a test.", Score: 78}, collector.Records[0])
	assert.Equal(t, "GetProcAddress", collector.Records[1].String)
	assert.Equal(t, 91, collector.Records[1].Score)
	assert.Equal(t, "kernel32.dll", collector.Records[2].String)

	assert.Equal(t, int64(len(sampleBinary())), stats.BytesRead)
	assert.Equal(t, int64(4), stats.Candidates)
	assert.Equal(t, int64(3), stats.Emitted)
	assert.Equal(t, 98, stats.MaxScore)

	for _, record := range collector.Records {
		assert.GreaterOrEqual(t, record.Score, scoring.DefaultMinScore)
	}
}

func TestRunThresholdIsInclusive(t *testing.T) {
	p := pipeline.New(pipeline.Options{MinScore: 78}, nil)
	collector := &pipeline.Collector{}

	_, err := p.Run(context.Background(), strings.NewReader("Hello, World! This is a test."), collector)
	require.NoError(t, err)
	require.Len(t, collector.Records, 1)

	p = pipeline.New(pipeline.Options{MinScore: 79}, nil)
	collector = &pipeline.Collector{}
	_, err = p.Run(context.Background(), strings.NewReader("Hello, World! This is a test."), collector)
	require.NoError(t, err)
	assert.Empty(t, collector.Records)
}

func TestRunWorkersPreserveOrder(t *testing.T) {
	data := manyStrings(2000)

	sequential := &pipeline.Collector{}
	_, err := pipeline.New(pipeline.Options{MinScore: -1000}, nil).Run(context.Background(), bytes.NewReader(data), sequential)
	require.NoError(t, err)
	require.Len(t, sequential.Records, 2000)

	for _, workers := range []int{2, 4, 8} {
		parallel := &pipeline.Collector{}
		stats, err := pipeline.New(pipeline.Options{MinScore: -1000, Workers: workers, BufferSize: 333}, nil).
			Run(context.Background(), bytes.NewReader(data), parallel)
		require.NoError(t, err)
		assert.Equal(t, int64(2000), stats.Emitted)
		assert.Equal(t, sequential.Records, parallel.Records, "workers=%d", workers)
	}

	for i := 1; i < len(sequential.Records); i++ {
		assert.Less(t, sequential.Records[i-1].Position, sequential.Records[i].Position)
	}
}

func TestRunSinkError(t *testing.T) {
	boom := errors.New("disk full")
	sink := pipeline.SinkFunc(func(pipeline.ScoredString) error { return boom })

	for _, workers := range []int{1, 3} {
		p := pipeline.New(pipeline.Options{Workers: workers}, nil)
		_, err := p.Run(context.Background(), bytes.NewReader(sampleBinary()), sink)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.False(t, pipeline.IsIOError(err))
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, workers := range []int{1, 4} {
		p := pipeline.New(pipeline.Options{Workers: workers}, nil)
		_, err := p.Run(ctx, bytes.NewReader(manyStrings(10)), &pipeline.Collector{})
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestRunReadError(t *testing.T) {
	boom := errors.New("media error")
	reader := io.MultiReader(strings.NewReader("Hello, World! This is a test.\x00tail"), iotest.ErrReader(boom))

	for _, workers := range []int{1, 2} {
		p := pipeline.New(pipeline.Options{Workers: workers}, nil)
		_, err := p.Run(context.Background(), reader, &pipeline.Collector{})
		require.Error(t, err)
		assert.True(t, pipeline.IsIOError(err))
		assert.ErrorIs(t, err, boom)

		reader = io.MultiReader(strings.NewReader("Hello, World! This is a test.\x00tail"), iotest.ErrReader(boom))
	}
}

func TestMultiSink(t *testing.T) {
	first := &pipeline.Collector{}
	second := &pipeline.Collector{}
	sink := pipeline.MultiSink(first, nil, second)

	record := pipeline.ScoredString{Position: 1, String: "abcdef", Score: 114}
	require.NoError(t, sink.Write(record))

	assert.Equal(t, []pipeline.ScoredString{record}, first.Records)
	assert.Equal(t, []pipeline.ScoredString{record}, second.Records)
}

func TestScanFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	data := sampleBinary()
	require.NoError(t, os.WriteFile(path, data, 0644))

	p := pipeline.New(pipeline.DefaultOptions(), nil)
	collector := &pipeline.Collector{}
	hash := sha256.New()

	stats, err := p.ScanFile(context.Background(), path, collector, hash)
	require.NoError(t, err)
	assert.Len(t, collector.Records, 3)
	assert.Equal(t, int64(len(data)), stats.BytesRead)

	want := sha256.Sum256(data)
	assert.Equal(t, want[:], hash.Sum(nil), "taps see every byte exactly once")
}

func TestScanFileMissing(t *testing.T) {
	p := pipeline.New(pipeline.DefaultOptions(), nil)
	missing := filepath.Join(t.TempDir(), "nope.bin")

	_, err := p.ScanFile(context.Background(), missing, &pipeline.Collector{})
	require.Error(t, err)
	assert.True(t, pipeline.IsIOError(err))
	assert.ErrorIs(t, err, os.ErrNotExist)

	var scanErr *pipeline.ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, missing, scanErr.Path)
	assert.Contains(t, err.Error(), missing)
}

func TestScanFileDirectory(t *testing.T) {
	p := pipeline.New(pipeline.DefaultOptions(), nil)
	dir := t.TempDir()

	_, err := p.ScanFile(context.Background(), dir, &pipeline.Collector{})
	require.Error(t, err)
	assert.True(t, pipeline.IsIOError(err))

	var scanErr *pipeline.ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, dir, scanErr.Path)
}
