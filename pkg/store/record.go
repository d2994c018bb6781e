package store

import (
	"encoding/json"
	"fmt"
)

// Source indicates how a record entered the library
type Source string

const (
	// SourceManual marks records saved by an explicit user or admin action
	SourceManual Source = "manual"
	// SourceAuto marks records committed by the ingestion pipeline
	SourceAuto Source = "auto"
)

// Record is a persisted meme entry. The ID doubles as the payload file name
// inside the store's image directory; the record exclusively owns that file.
type Record struct {
	ID          string `json:"-"`
	TagText     string `json:"tags"`
	Source      Source `json:"source"`
	ContentHash string `json:"hash"`
}

// recordEnvelope tolerates the legacy index shape where a record value is a
// bare tag string instead of an object. Legacy entries are normalized to the
// canonical shape on load and rewritten on the next flush.
type recordEnvelope struct {
	Record
}

// UnmarshalJSON accepts both the canonical object form and the legacy
// bare-string form.
func (e *recordEnvelope) UnmarshalJSON(data []byte) error {
	var tags string
	if err := json.Unmarshal(data, &tags); err == nil {
		e.Record = Record{TagText: tags, Source: SourceManual}
		return nil
	}

	type canonical Record
	var rec canonical
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("malformed record: %w", err)
	}
	if rec.Source == "" {
		rec.Source = SourceManual
	}
	e.Record = Record(rec)
	return nil
}
