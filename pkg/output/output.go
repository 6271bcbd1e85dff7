/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: output.go
Description: Record writers for scan results. JSON Lines is the machine-readable default,
one compact object per line. The table format renders a go-pretty table for analysts
reading results in a terminal.
*/

package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kleascm/mala-strings/pkg/pipeline"
)

// Format names a record encoding
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatTable Format = "table"
)

// Formats lists the supported encodings
func Formats() []Format {
	return []Format{FormatJSONL, FormatTable}
}

// Writer is a pipeline sink that may buffer until flushed
type Writer interface {
	pipeline.Sink
	Flush() error
}

// New returns a writer for the named format
func New(format string, w io.Writer) (Writer, error) {
	switch Format(strings.ToLower(format)) {
	case FormatJSONL, "json", "":
		return NewJSONLWriter(w), nil
	case FormatTable:
		return NewTableWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// JSONLWriter encodes each record as a single JSON line
type JSONLWriter struct {
	buf     *bufio.Writer
	encoder *json.Encoder
}

// NewJSONLWriter creates a JSON Lines writer on w
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	buf := bufio.NewWriter(w)
	encoder := json.NewEncoder(buf)
	// Strings are emitted verbatim, '<' '>' '&' included
	encoder.SetEscapeHTML(false)

	return &JSONLWriter{buf: buf, encoder: encoder}
}

// Write encodes s followed by a newline
func (j *JSONLWriter) Write(s pipeline.ScoredString) error {
	if err := j.encoder.Encode(s); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return nil
}

// Flush writes any buffered lines
func (j *JSONLWriter) Flush() error {
	return j.buf.Flush()
}

// TableWriter collects records and renders them as a table on Flush
type TableWriter struct {
	out     io.Writer
	records []pipeline.ScoredString
}

// NewTableWriter creates a table writer on w
func NewTableWriter(w io.Writer) *TableWriter {
	return &TableWriter{out: w}
}

// Write buffers s
func (t *TableWriter) Write(s pipeline.ScoredString) error {
	t.records = append(t.records, s)
	return nil
}

// Flush renders the buffered records. An empty scan renders nothing.
func (t *TableWriter) Flush() error {
	if len(t.records) == 0 {
		return nil
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Position", "Hex", "Score", "String"})

	for _, record := range t.records {
		tw.AppendRow(table.Row{
			strconv.FormatInt(record.Position, 10),
			fmt.Sprintf("0x%08x", record.Position),
			strconv.Itoa(record.Score),
			record.String,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignLeft, WidthMax: 120},
	})
	tw.AppendFooter(table.Row{"", "", "Total", strconv.Itoa(len(t.records))})

	if _, err := io.WriteString(t.out, tw.Render()+"\n"); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	t.records = t.records[:0]
	return nil
}
