package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/akvo/logbook/internal/extractor"
	"github.com/akvo/logbook/internal/schema"
	"github.com/akvo/logbook/internal/store"
	"github.com/akvo/logbook/internal/validation"
)

type recordRequest struct {
	FarmerID        uuid.UUID      `json:"farmer_id"`
	RecordType      string         `json:"record_type"`
	OccurredAt      string         `json:"occurred_at,omitempty"` // YYYY-MM-DD
	Data            map[string]any `json:"data"`
	SourceChannel   string         `json:"source_channel,omitempty"`
	SourceInputMode string         `json:"source_input_mode,omitempty"`
	SourceLanguage  string         `json:"source_language,omitempty"`
	Confidence      float64        `json:"confidence,omitempty"`
	QualityNotes    string         `json:"quality_notes,omitempty"`
	RawTranscript   string         `json:"raw_transcript,omitempty"`
}

type recordResponse struct {
	ID              uuid.UUID         `json:"id"`
	FarmerID        uuid.UUID         `json:"farmer_id"`
	MessageID       *uuid.UUID        `json:"message_id,omitempty"`
	RecordType      schema.RecordType `json:"record_type"`
	OccurredAt      string            `json:"occurred_at,omitempty"`
	Data            map[string]any    `json:"data"`
	SourceChannel   string            `json:"source_channel"`
	SourceInputMode string            `json:"source_input_mode"`
	SourceLanguage  string            `json:"source_language"`
	Confidence      float64           `json:"confidence"`
	MissingFields   []string          `json:"missing_fields"`
	NeedsFollowup   bool              `json:"needs_followup"`
	Confirmed       bool              `json:"confirmed"`
	QualityNotes    string            `json:"quality_notes,omitempty"`
	RawTranscript   string            `json:"raw_transcript,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

func toRecordResponse(r *store.Record) recordResponse {
	occurred := ""
	if r.OccurredAt != nil {
		occurred = r.OccurredAt.Format("2006-01-02")
	}
	missing := r.MissingFields
	if missing == nil {
		missing = []string{}
	}
	return recordResponse{
		ID:              r.ID,
		FarmerID:        r.FarmerID,
		MessageID:       r.MessageID,
		RecordType:      r.RecordType,
		OccurredAt:      occurred,
		Data:            r.Data,
		SourceChannel:   r.SourceChannel,
		SourceInputMode: r.SourceInputMode,
		SourceLanguage:  r.SourceLanguage,
		Confidence:      r.Confidence,
		MissingFields:   missing,
		NeedsFollowup:   r.NeedsFollowup,
		Confirmed:       r.Confirmed,
		QualityNotes:    r.QualityNotes,
		RawTranscript:   r.RawTranscript,
		CreatedAt:       r.CreatedAt,
	}
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.FarmerID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "farmer_id is required")
		return
	}
	recordType := schema.ParseRecordType(req.RecordType)
	if recordType == schema.Unknown && req.RecordType != string(schema.Unknown) {
		writeError(w, http.StatusBadRequest, "unknown record_type")
		return
	}

	if _, err := s.store.GetFarmer(r.Context(), req.FarmerID); err != nil {
		farmerError(w, s, err)
		return
	}

	var occurredAt *time.Time
	occurredStr := ""
	if req.OccurredAt != "" {
		t, err := time.Parse("2006-01-02", req.OccurredAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "occurred_at must be YYYY-MM-DD")
			return
		}
		occurredAt = &t
		occurredStr = req.OccurredAt
	}

	data := req.Data
	if data == nil {
		data = map[string]any{}
	}

	// Completion state is always derived, never taken from the caller.
	needsFollowup, missing := validation.Evaluate(recordType, occurredStr, data)

	channel := req.SourceChannel
	if channel == "" {
		channel = "api"
	}
	inputMode := req.SourceInputMode
	if inputMode == "" {
		inputMode = schema.InputModeText
	}

	rec := &store.Record{
		ID:              uuid.New(),
		FarmerID:        req.FarmerID,
		RecordType:      recordType,
		OccurredAt:      occurredAt,
		Data:            data,
		SourceChannel:   channel,
		SourceInputMode: inputMode,
		SourceLanguage:  schema.ParseLanguage(req.SourceLanguage),
		Confidence:      req.Confidence,
		MissingFields:   missing,
		NeedsFollowup:   needsFollowup,
		Confirmed:       !needsFollowup,
		QualityNotes:    req.QualityNotes,
		RawTranscript:   req.RawTranscript,
	}

	if err := s.store.InsertRecord(r.Context(), rec); err != nil {
		s.logger.Error("create record failed", "farmer_id", req.FarmerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create record")
		return
	}
	writeJSON(w, http.StatusCreated, toRecordResponse(rec))
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseRecordFilter(w, r)
	if !ok {
		return
	}
	s.writeRecordList(w, r, filter)
}

// listFollowupRecords returns only open records awaiting more details.
func (s *Server) listFollowupRecords(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseRecordFilter(w, r)
	if !ok {
		return
	}
	needsFollowup := true
	filter.NeedsFollowup = &needsFollowup
	s.writeRecordList(w, r, filter)
}

func (s *Server) writeRecordList(w http.ResponseWriter, r *http.Request, filter store.RecordFilter) {
	records, err := s.store.ListRecords(r.Context(), filter)
	if err != nil {
		s.logger.Error("list records failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	out := make([]recordResponse, 0, len(records))
	for i := range records {
		out = append(out, toRecordResponse(&records[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func parseRecordFilter(w http.ResponseWriter, r *http.Request) (store.RecordFilter, bool) {
	q := r.URL.Query()
	filter := store.RecordFilter{
		Skip:  queryInt(r, "skip", 0),
		Limit: queryInt(r, "limit", 100),
	}

	if v := q.Get("farmer_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid farmer_id")
			return filter, false
		}
		filter.FarmerID = &id
	}
	if v := q.Get("record_type"); v != "" {
		filter.RecordType = schema.ParseRecordType(v)
	}
	if v := q.Get("needs_followup"); v != "" {
		b := v == "true" || v == "1"
		filter.NeedsFollowup = &b
	}
	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date_from must be YYYY-MM-DD")
			return filter, false
		}
		filter.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date_to must be YYYY-MM-DD")
			return filter, false
		}
		filter.DateTo = &t
	}
	return filter, true
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	rec, err := s.store.GetRecord(r.Context(), id)
	if err != nil {
		recordError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// updateRecord applies manual field edits and re-derives the completion
// state from the merged result.
func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req recordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.store.GetRecord(r.Context(), id)
	if err != nil {
		recordError(w, s, err)
		return
	}

	if req.OccurredAt != "" {
		t, err := time.Parse("2006-01-02", req.OccurredAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "occurred_at must be YYYY-MM-DD")
			return
		}
		rec.OccurredAt = &t
	}
	for k, v := range req.Data {
		rec.Data[k] = v
	}
	if req.Confidence > 0 {
		rec.Confidence = req.Confidence
	}
	if req.QualityNotes != "" {
		rec.QualityNotes = req.QualityNotes
	}

	occurredStr := ""
	if rec.OccurredAt != nil {
		occurredStr = rec.OccurredAt.Format("2006-01-02")
	}
	needsFollowup, missing := validation.Evaluate(rec.RecordType, occurredStr, rec.Data)
	rec.MissingFields = missing
	if rec.MissingFields == nil {
		rec.MissingFields = []string{}
	}
	rec.NeedsFollowup = needsFollowup
	rec.Confirmed = !needsFollowup

	if err := s.store.SaveRecord(r.Context(), rec); err != nil {
		recordError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteRecord(r.Context(), id); err != nil {
		recordError(w, s, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func recordError(w http.ResponseWriter, s *Server, err error) {
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	s.logger.Error("record operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

type extractRequest struct {
	Transcript string `json:"transcript"`
	FarmerID   string `json:"farmer_id,omitempty"`
	FarmerName string `json:"farmer_name,omitempty"`
	InputMode  string `json:"input_mode,omitempty"`
}

type extractResponse struct {
	Records []extractor.Candidate `json:"records"`
	Count   int                   `json:"count"`
}

// extract runs the extraction pipeline on a raw transcript without
// touching farmers, records, or the reply channel. Useful for testing
// prompts against real messages.
func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Transcript == "" {
		writeError(w, http.StatusBadRequest, "transcript is required")
		return
	}
	inputMode := req.InputMode
	if inputMode == "" {
		inputMode = schema.InputModeText
	}

	candidates, err := s.extractor.Extract(r.Context(), extractor.Input{
		Transcript:  req.Transcript,
		FarmerID:    req.FarmerID,
		FarmerName:  req.FarmerName,
		InputMode:   inputMode,
		CurrentDate: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("extract failed", "error", err)
		writeError(w, http.StatusBadGateway, "extraction failed")
		return
	}
	if candidates == nil {
		candidates = []extractor.Candidate{}
	}
	writeJSON(w, http.StatusOK, extractResponse{Records: candidates, Count: len(candidates)})
}
