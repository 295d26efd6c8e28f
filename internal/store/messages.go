package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/akvo/logbook/internal/schema"
)

// Message is one raw inbound or outbound communication unit.
type Message struct {
	ID          uuid.UUID
	FarmerID    uuid.UUID
	ProviderSID string
	Direction   schema.MessageDirection
	Body        string
	MediaURL    string
	Processed   bool
	CreatedAt   time.Time
}

// InsertInboundMessage stores a newly received message. The provider
// SID is unique: a replayed webhook hits the conflict clause, inserts
// nothing, and gets ErrDuplicateMessage back.
func (s *Store) InsertInboundMessage(ctx context.Context, farmerID uuid.UUID, providerSID, body, mediaURL string) (*Message, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, farmer_id, provider_sid, direction, body, media_url, processed, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), false, now())
		ON CONFLICT (provider_sid) DO NOTHING
		RETURNING id, created_at`,
		uuid.New(), farmerID, providerSID, schema.DirectionInbound, body, mediaURL,
	)

	msg := &Message{
		FarmerID:    farmerID,
		ProviderSID: providerSID,
		Direction:   schema.DirectionInbound,
		Body:        body,
		MediaURL:    mediaURL,
	}
	if err := row.Scan(&msg.ID, &msg.CreatedAt); err != nil {
		// No row returned means the SID was already stored.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDuplicateMessage
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// InsertOutboundMessage records a reply we sent, for the audit trail.
func (s *Store) InsertOutboundMessage(ctx context.Context, farmerID uuid.UUID, providerSID, body string) (*Message, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, farmer_id, provider_sid, direction, body, processed, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), true, now())
		RETURNING id, created_at`,
		uuid.New(), farmerID, providerSID, schema.DirectionOutbound, body,
	)

	msg := &Message{
		FarmerID:    farmerID,
		ProviderSID: providerSID,
		Direction:   schema.DirectionOutbound,
		Body:        body,
		Processed:   true,
	}
	if err := row.Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert outbound message: %w", err)
	}
	return msg, nil
}

// MarkMessageProcessed flips the processed flag, the message's only
// mutation.
func (s *Store) MarkMessageProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET processed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
