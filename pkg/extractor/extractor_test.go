/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: extractor_test.go
Description: Tests for printable run extraction. Covers offsets across buffer boundaries,
the minimum length threshold, end-of-stream flushing, and read failure handling.
*/

package extractor_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/kleascm/mala-strings/pkg/extractor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// padded builds a stream of NUL padding, the run, then more padding
func padded(prefix int, run string, suffix int) []byte {
	data := make([]byte, 0, prefix+len(run)+suffix)
	data = append(data, make([]byte, prefix)...)
	data = append(data, run...)
	data = append(data, make([]byte, suffix)...)
	return data
}

// naiveRuns is a straightforward reference for maximal printable runs
func naiveRuns(data []byte, minLength int) []extractor.Candidate {
	var out []extractor.Candidate
	start := -1
	for i := 0; i <= len(data); i++ {
		if i < len(data) && extractor.IsPrintable(data[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLength {
			out = append(out, extractor.Candidate{
				Offset: int64(start),
				Bytes:  append([]byte(nil), data[start:i]...),
			})
		}
		start = -1
	}
	return out
}

func TestIsPrintable(t *testing.T) {
	assert.True(t, extractor.IsPrintable(' '))
	assert.True(t, extractor.IsPrintable('~'))
	assert.True(t, extractor.IsPrintable('A'))
	assert.False(t, extractor.IsPrintable(0x1F))
	assert.False(t, extractor.IsPrintable(0x7F))
	assert.False(t, extractor.IsPrintable('\n'))
	assert.False(t, extractor.IsPrintable('\t'))
	assert.False(t, extractor.IsPrintable(0xE9))
}

func TestExtractSentenceOffset(t *testing.T) {
	sentence := "Hello, World! This is a test."
	data := padded(17, sentence, 9)

	candidates, err := extractor.Extract(bytes.NewReader(data), extractor.DefaultMinLength)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	assert.Equal(t, int64(17), candidates[0].Offset)
	assert.Equal(t, sentence, candidates[0].String())
	assert.Equal(t, len(sentence), candidates[0].Len())
}

func TestExtractMinimumLength(t *testing.T) {
	t.Run("five bytes dropped", func(t *testing.T) {
		candidates, err := extractor.Extract(bytes.NewReader(padded(4, "abcde", 4)), 6)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	t.Run("six bytes kept", func(t *testing.T) {
		candidates, err := extractor.Extract(bytes.NewReader(padded(4, "abcdef", 4)), 6)
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, "abcdef", candidates[0].String())
		assert.Equal(t, int64(4), candidates[0].Offset)
	})

	t.Run("short runs split by one byte stay separate", func(t *testing.T) {
		data := []byte("abcde\x00fghij\x01klmno")
		candidates, err := extractor.Extract(bytes.NewReader(data), 6)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})
}

func TestExtractFlushesAtEOF(t *testing.T) {
	data := append([]byte{0x00, 0xFF, 0x10}, "trailing run"...)

	candidates, err := extractor.Extract(bytes.NewReader(data), 6)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(3), candidates[0].Offset)
	assert.Equal(t, "trailing run", candidates[0].String())
}

func TestExtractWholeStreamIsOneRun(t *testing.T) {
	candidates, err := extractor.Extract(strings.NewReader("printable only"), 6)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(0), candidates[0].Offset)
}

func TestExtractEmptyInput(t *testing.T) {
	candidates, err := extractor.Extract(bytes.NewReader(nil), 6)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestExtractOffsetsAcrossBufferBoundaries(t *testing.T) {
	var data []byte
	data = append(data, "leading!"...)
	data = append(data, 0x00, 0x01)
	data = append(data, "short"...)
	data = append(data, 0x02)
	data = append(data, "a run that straddles several tiny buffers"...)
	data = append(data, bytes.Repeat([]byte{0xAA}, 13)...)
	data = append(data, "middle text"...)
	data = append(data, 0x7F)
	data = append(data, "ends at eof"...)

	expected := naiveRuns(data, 6)
	require.Len(t, expected, 4)

	for _, size := range []int{1, 2, 3, 7, 16, 4096} {
		candidates, err := extractor.Extract(bytes.NewReader(data), 6, extractor.WithBufferSize(size))
		require.NoError(t, err, "buffer size %d", size)
		assert.Equal(t, expected, candidates, "buffer size %d", size)
	}

	candidates, err := extractor.Extract(iotest.OneByteReader(bytes.NewReader(data)), 6)
	require.NoError(t, err)
	assert.Equal(t, expected, candidates)
}

func TestExtractMatchesReferenceOnMixedData(t *testing.T) {
	// Deterministic pseudo-random bytes biased toward printable runs
	data := make([]byte, 20000)
	state := uint32(2463534242)
	for i := range data {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		if state%11 == 0 {
			data[i] = byte(state >> 8)
		} else {
			data[i] = byte(0x20 + (state>>8)%95)
		}
	}

	expected := naiveRuns(data, 6)
	require.NotEmpty(t, expected)

	for _, size := range []int{5, 128, extractor.DefaultBufferSize} {
		candidates, err := extractor.Extract(bytes.NewReader(data), 6, extractor.WithBufferSize(size))
		require.NoError(t, err)
		assert.Equal(t, expected, candidates, "buffer size %d", size)

		for i := 1; i < len(candidates); i++ {
			assert.Less(t, candidates[i-1].Offset, candidates[i].Offset)
		}
	}
}

func TestScannerIsLazy(t *testing.T) {
	data := []byte("first run\x00second run\x00third run")
	scanner := extractor.NewScanner(bytes.NewReader(data), 6, extractor.WithBufferSize(4))

	require.True(t, scanner.Scan())
	assert.Equal(t, "first run", scanner.Candidate().String())
	assert.Less(t, scanner.Offset(), int64(len(data)))

	require.True(t, scanner.Scan())
	assert.Equal(t, "second run", scanner.Candidate().String())
	assert.Equal(t, int64(10), scanner.Candidate().Offset)

	require.True(t, scanner.Scan())
	assert.Equal(t, "third run", scanner.Candidate().String())

	assert.False(t, scanner.Scan())
	assert.False(t, scanner.Scan())
	assert.NoError(t, scanner.Err())
	assert.Equal(t, int64(len(data)), scanner.Offset())
}

func TestScannerCandidatesDoNotAlias(t *testing.T) {
	scanner := extractor.NewScanner(strings.NewReader("aaaaaaa\x00bbbbbbb"), 6)

	require.True(t, scanner.Scan())
	first := scanner.Candidate()
	require.True(t, scanner.Scan())

	assert.Equal(t, "aaaaaaa", first.String())
	assert.Equal(t, "bbbbbbb", scanner.Candidate().String())
}

func TestScannerMinLengthNormalised(t *testing.T) {
	candidates, err := extractor.Extract(strings.NewReader("a\x00b"), 0)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, int64(2), candidates[1].Offset)
}

func TestExtractReadError(t *testing.T) {
	boom := errors.New("device unplugged")
	reader := io.MultiReader(strings.NewReader("complete run\x00partial"), iotest.ErrReader(boom))

	candidates, err := extractor.Extract(reader, 6)
	require.Error(t, err)
	assert.Nil(t, candidates)
	assert.ErrorIs(t, err, boom)

	var readErr *extractor.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, int64(20), readErr.Offset)
}

func TestScannerStopsOnReadError(t *testing.T) {
	boom := errors.New("bad sector")
	reader := io.MultiReader(strings.NewReader("complete run\x00partial"), iotest.ErrReader(boom))
	scanner := extractor.NewScanner(reader, 6)

	require.True(t, scanner.Scan())
	assert.Equal(t, "complete run", scanner.Candidate().String())

	assert.False(t, scanner.Scan(), "trailing partial run must not be flushed after an error")
	assert.ErrorIs(t, scanner.Err(), boom)
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	require.NoError(t, os.WriteFile(path, padded(100, "embedded string", 3), 0644))

	candidates, err := extractor.ExtractFile(path, 6)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(100), candidates[0].Offset)

	_, err = extractor.ExtractFile(filepath.Join(dir, "missing.bin"), 6)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
