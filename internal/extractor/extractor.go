// Package extractor turns a farmer's message into structured record
// candidates via the LLM.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/akvo/logbook/internal/llm"
)

type Extractor struct {
	llm    *llm.Client
	logger *slog.Logger
}

func New(client *llm.Client, logger *slog.Logger) *Extractor {
	return &Extractor{llm: client, logger: logger}
}

// Extract asks the model for record candidates. A malformed individual
// candidate is logged and skipped; an empty result is not an error.
func (e *Extractor) Extract(ctx context.Context, in Input) ([]Candidate, error) {
	userMessage := buildUserMessage(in)

	e.logger.Info("extracting records",
		"farmer_id", in.FarmerID,
		"input_mode", in.InputMode,
		"transcript_len", len(in.Transcript),
		"has_open_record", in.Existing != nil,
	)

	raw, err := e.llm.Complete(ctx, systemPrompt, userMessage, llm.CompleteOptions{
		Temperature: 0.1,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("llm extraction: %w", err)
	}

	candidates := e.parseResponse(raw)

	e.logger.Info("extraction complete",
		"farmer_id", in.FarmerID,
		"candidates", len(candidates),
	)

	return candidates, nil
}

func buildUserMessage(in Input) string {
	msg := fmt.Sprintf(`Input:
- current_date: %q
- farmer_id: %q
- farmer_name: %q
- input_mode: %q
- transcript: %q
`, in.CurrentDate.Format("2006-01-02"), in.FarmerID, in.FarmerName, in.InputMode, in.Transcript)

	if in.Existing != nil {
		existingJSON, _ := json.Marshal(in.Existing.Data)
		missingJSON, _ := json.Marshal(in.Existing.MissingFields)
		msg += fmt.Sprintf(`
IMPORTANT: This is a follow-up response to complete an existing record.
- existing_record_type: %q
- existing_data: %s
- missing_fields: %s
- existing_occurred_at: %q
The farmer is providing additional information to fill in the missing fields. Merge the new information with existing data. Keep existing values unless explicitly corrected.
`, in.Existing.RecordType, existingJSON, missingJSON, in.Existing.OccurredAt)
	}

	return msg
}

// parseResponse tolerates the shapes the model actually produces: a
// wrapper object with a records array, a bare array, or a single
// record object. Elements that fail to decode are dropped one by one
// so the rest of the batch survives.
func (e *Extractor) parseResponse(raw string) []Candidate {
	var rawItems []json.RawMessage

	var wrapper struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapper); err == nil && wrapper.Records != nil {
		rawItems = wrapper.Records
	} else if err := json.Unmarshal([]byte(raw), &rawItems); err != nil {
		// Not a wrapper, not an array. Try a single record object.
		var single Candidate
		if err := json.Unmarshal([]byte(raw), &single); err != nil || single.RecordType == "" {
			e.logger.Error("failed to parse extraction response", "raw", truncate(raw, 500))
			return nil
		}
		return []Candidate{single}
	}

	candidates := make([]Candidate, 0, len(rawItems))
	for i, item := range rawItems {
		var c Candidate
		if err := json.Unmarshal(item, &c); err != nil {
			e.logger.Warn("skipping malformed candidate", "index", i, "error", err)
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
