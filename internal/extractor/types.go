package extractor

import (
	"time"

	"github.com/akvo/logbook/internal/schema"
)

// Input is everything the extraction call receives for one turn.
type Input struct {
	Transcript  string
	FarmerID    string
	FarmerName  string
	InputMode   string // "text" or "voice"
	CurrentDate time.Time

	// Existing is set when the farmer has an open record; the model is
	// then asked to merge rather than start over.
	Existing *OpenRecordContext
}

// OpenRecordContext summarises the pending record for the prompt.
type OpenRecordContext struct {
	RecordType    schema.RecordType `json:"record_type"`
	Data          map[string]any    `json:"data"`
	MissingFields []string          `json:"missing_fields"`
	OccurredAt    string            `json:"occurred_at,omitempty"`
}

// Candidate is one raw record the model proposed. Nothing in it is
// trusted yet: the type string may be garbage and the quality block is
// advisory only.
type Candidate struct {
	RecordType string         `json:"record_type"`
	OccurredAt string         `json:"occurred_at,omitempty"`
	Source     Source         `json:"source"`
	Data       map[string]any `json:"data"`
	Quality    Quality        `json:"quality"`
}

// Source describes where and how the message came in.
type Source struct {
	Channel   string `json:"channel"`
	InputMode string `json:"input_mode"`
	Language  string `json:"language"`
}

// Quality is the model's own assessment of the extraction.
type Quality struct {
	Confidence    float64  `json:"confidence"`
	MissingFields []string `json:"missing_fields"`
	NeedsFollowup bool     `json:"needs_followup"`
	Notes         string   `json:"notes,omitempty"`
}

// Type resolves the candidate's record type, falling back to unknown
// for anything outside the closed set.
func (c Candidate) Type() schema.RecordType {
	return schema.ParseRecordType(c.RecordType)
}
