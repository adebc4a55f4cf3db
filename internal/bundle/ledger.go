package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// FaceRecord ties one stored vector to the image and face it came from.
// The JSON field names are the on-disk format shared with existing bundles.
type FaceRecord struct {
	SourcePath  string `json:"imagen"`
	FaceOrdinal int    `json:"cara_id"`
}

// Ledger is the append-only list of face records. Position i describes
// vector i of the VectorIndex.
type Ledger struct {
	records []FaceRecord
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Len() int { return len(l.records) }

// At returns the record at position i.
func (l *Ledger) At(i int) (FaceRecord, bool) {
	if i < 0 || i >= len(l.records) {
		return FaceRecord{}, false
	}
	return l.records[i], true
}

// Records returns a copy of all records in ledger order.
func (l *Ledger) Records() []FaceRecord {
	return slices.Clone(l.records)
}

// Append adds one record per face of sourcePath, with ordinals 0..faces-1.
func (l *Ledger) Append(sourcePath string, faces int) {
	for i := 0; i < faces; i++ {
		l.records = append(l.records, FaceRecord{SourcePath: sourcePath, FaceOrdinal: i})
	}
}

func (l *Ledger) truncate(n int) {
	if n < len(l.records) {
		l.records = l.records[:n]
	}
}

// MarshalJSON writes the ledger as a plain JSON array.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	records := l.records
	if records == nil {
		records = []FaceRecord{}
	}
	return marshalIndented(records)
}

// UnmarshalJSON reads a JSON array of face records.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var records []FaceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to decode ledger: %w", err)
	}
	l.records = records
	return nil
}

// marshalIndented encodes v with two-space indentation and without HTML
// escaping, so paths with non-ASCII or '&' stay readable.
func marshalIndented(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
