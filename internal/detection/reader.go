package detection

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineSize bounds a single JSON-lines record.
const maxLineSize = 4 * 1024 * 1024

// BatchReader decodes one Batch per line from a JSON-lines stream. Blank
// lines and lines starting with '#' are skipped.
type BatchReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewBatchReader creates a reader over r.
func NewBatchReader(r io.Reader) *BatchReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &BatchReader{scanner: s}
}

// Next returns the next batch with parent pointers linked, or io.EOF.
func (br *BatchReader) Next() (*Batch, error) {
	for br.scanner.Scan() {
		br.line++
		raw := bytes.TrimSpace(br.scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		var b Batch
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("line %d: decode batch: %w", br.line, err)
		}
		b.Link()
		return &b, nil
	}
	if err := br.scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: read: %w", br.line+1, err)
	}
	return nil, io.EOF
}

// Line returns the number of lines consumed so far.
func (br *BatchReader) Line() int { return br.line }
