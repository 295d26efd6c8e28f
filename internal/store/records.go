package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/akvo/logbook/internal/schema"
)

// Record is one structured logbook entry. confirmed and needs_followup
// are stored denormalized but always derived from missing_fields by
// the validation package before a write.
type Record struct {
	ID              uuid.UUID
	FarmerID        uuid.UUID
	MessageID       *uuid.UUID
	RecordType      schema.RecordType
	OccurredAt      *time.Time
	Data            map[string]any
	SourceChannel   string
	SourceInputMode string
	SourceLanguage  string
	Confidence      float64
	MissingFields   []string
	NeedsFollowup   bool
	Confirmed       bool
	QualityNotes    string
	RawTranscript   string
	CreatedAt       time.Time
}

// RecordFilter narrows ListRecords.
type RecordFilter struct {
	FarmerID      *uuid.UUID
	RecordType    schema.RecordType
	NeedsFollowup *bool
	DateFrom      *time.Time
	DateTo        *time.Time
	Skip          int
	Limit         int
}

const recordColumns = `id, farmer_id, message_id, record_type, occurred_at, data,
	source_channel, source_input_mode, source_language,
	confidence, missing_fields, needs_followup, confirmed,
	COALESCE(quality_notes, ''), COALESCE(raw_transcript, ''), created_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var dataJSON []byte
	err := row.Scan(
		&r.ID, &r.FarmerID, &r.MessageID, &r.RecordType, &r.OccurredAt, &dataJSON,
		&r.SourceChannel, &r.SourceInputMode, &r.SourceLanguage,
		&r.Confidence, &r.MissingFields, &r.NeedsFollowup, &r.Confirmed,
		&r.QualityNotes, &r.RawTranscript, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(dataJSON, &r.Data); err != nil {
		return nil, fmt.Errorf("decode record data: %w", err)
	}
	return &r, nil
}

// GetOpenRecord returns the farmer's most recent record that is still
// awaiting follow-up, the continuation target for the next inbound
// message. ErrNotFound when the farmer has no open record.
func (s *Store) GetOpenRecord(ctx context.Context, farmerID uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE farmer_id = $1 AND confirmed = false AND needs_followup = true
		ORDER BY created_at DESC
		LIMIT 1`,
		farmerID,
	)
	return scanRecord(row)
}

func (s *Store) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	return scanRecord(row)
}

const insertRecordSQL = `
	INSERT INTO records (
		id, farmer_id, message_id, record_type, occurred_at, data,
		source_channel, source_input_mode, source_language,
		confidence, missing_fields, needs_followup, confirmed,
		quality_notes, raw_transcript, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), NULLIF($15, ''), now())`

// CreateRecord inserts a record and marks the inbound message that
// produced it processed, in one transaction: if the record write fails
// the message stays unprocessed and the turn is retry-safe.
func (s *Store) CreateRecord(ctx context.Context, r *Record, inboundMessageID uuid.UUID) error {
	dataJSON, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("encode record data: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertRecordSQL,
		r.ID, r.FarmerID, r.MessageID, r.RecordType, r.OccurredAt, dataJSON,
		r.SourceChannel, r.SourceInputMode, r.SourceLanguage,
		r.Confidence, r.MissingFields, r.NeedsFollowup, r.Confirmed,
		r.QualityNotes, r.RawTranscript,
	); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE messages SET processed = true WHERE id = $1`, inboundMessageID); err != nil {
		return fmt.Errorf("mark message processed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateRecord persists a merged record and marks the continuing
// inbound message processed, in one transaction.
func (s *Store) UpdateRecord(ctx context.Context, r *Record, inboundMessageID uuid.UUID) error {
	dataJSON, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("encode record data: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE records SET
			occurred_at = $2, data = $3, confidence = $4,
			missing_fields = $5, needs_followup = $6, confirmed = $7,
			quality_notes = NULLIF($8, ''), raw_transcript = NULLIF($9, '')
		WHERE id = $1`,
		r.ID, r.OccurredAt, dataJSON, r.Confidence,
		r.MissingFields, r.NeedsFollowup, r.Confirmed,
		r.QualityNotes, r.RawTranscript,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx, `UPDATE messages SET processed = true WHERE id = $1`, inboundMessageID); err != nil {
		return fmt.Errorf("mark message processed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// InsertRecord writes a record outside the webhook flow (manual API
// creation).
func (s *Store) InsertRecord(ctx context.Context, r *Record) error {
	dataJSON, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("encode record data: %w", err)
	}
	if _, err := s.pool.Exec(ctx, insertRecordSQL,
		r.ID, r.FarmerID, r.MessageID, r.RecordType, r.OccurredAt, dataJSON,
		r.SourceChannel, r.SourceInputMode, r.SourceLanguage,
		r.Confidence, r.MissingFields, r.NeedsFollowup, r.Confirmed,
		r.QualityNotes, r.RawTranscript,
	); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// SaveRecord persists field edits outside the webhook flow (manual API
// update). No inbound message is involved.
func (s *Store) SaveRecord(ctx context.Context, r *Record) error {
	dataJSON, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("encode record data: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE records SET
			occurred_at = $2, data = $3, confidence = $4,
			missing_fields = $5, needs_followup = $6, confirmed = $7,
			quality_notes = NULLIF($8, ''), raw_transcript = NULLIF($9, '')
		WHERE id = $1`,
		r.ID, r.OccurredAt, dataJSON, r.Confidence,
		r.MissingFields, r.NeedsFollowup, r.Confirmed,
		r.QualityNotes, r.RawTranscript,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecords returns records newest first, narrowed by the filter.
func (s *Store) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE true`
	args := []any{}

	if f.FarmerID != nil {
		args = append(args, *f.FarmerID)
		query += fmt.Sprintf(` AND farmer_id = $%d`, len(args))
	}
	if f.RecordType != "" {
		args = append(args, f.RecordType)
		query += fmt.Sprintf(` AND record_type = $%d`, len(args))
	}
	if f.NeedsFollowup != nil {
		args = append(args, *f.NeedsFollowup)
		query += fmt.Sprintf(` AND needs_followup = $%d`, len(args))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		query += fmt.Sprintf(` AND occurred_at >= $%d`, len(args))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		query += fmt.Sprintf(` AND occurred_at <= $%d`, len(args))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, f.Skip, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC OFFSET $%d LIMIT $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var dataJSON []byte
		if err := rows.Scan(
			&r.ID, &r.FarmerID, &r.MessageID, &r.RecordType, &r.OccurredAt, &dataJSON,
			&r.SourceChannel, &r.SourceInputMode, &r.SourceLanguage,
			&r.Confidence, &r.MissingFields, &r.NeedsFollowup, &r.Confirmed,
			&r.QualityNotes, &r.RawTranscript, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal(dataJSON, &r.Data); err != nil {
			return nil, fmt.Errorf("decode record data: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
