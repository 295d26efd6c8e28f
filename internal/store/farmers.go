package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Farmer is the identity anchor for all messages and records.
type Farmer struct {
	ID          uuid.UUID
	ExternalID  string // channel identifier, e.g. "whatsapp:+62812..."
	Name        string
	PhoneNumber string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const farmerColumns = `id, external_id, name, COALESCE(phone_number, ''), created_at, updated_at`

func scanFarmer(row pgx.Row) (*Farmer, error) {
	var f Farmer
	err := row.Scan(&f.ID, &f.ExternalID, &f.Name, &f.PhoneNumber, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (s *Store) GetFarmer(ctx context.Context, id uuid.UUID) (*Farmer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+farmerColumns+` FROM farmers WHERE id = $1`, id)
	return scanFarmer(row)
}

func (s *Store) GetFarmerByExternalID(ctx context.Context, externalID string) (*Farmer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+farmerColumns+` FROM farmers WHERE external_id = $1`, externalID)
	return scanFarmer(row)
}

// GetOrCreateFarmer resolves a farmer by external identifier, creating
// one on first contact. The second return value reports whether a new
// farmer was created.
func (s *Store) GetOrCreateFarmer(ctx context.Context, externalID, name, phoneNumber string) (*Farmer, bool, error) {
	farmer, err := s.GetFarmerByExternalID(ctx, externalID)
	if err == nil {
		return farmer, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup farmer: %w", err)
	}

	// Insert, tolerating a concurrent first-contact from the same number.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO farmers (id, external_id, name, phone_number, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), now(), now())
		ON CONFLICT (external_id) DO UPDATE SET updated_at = now()
		RETURNING `+farmerColumns,
		uuid.New(), externalID, name, phoneNumber,
	)
	farmer, err = scanFarmer(row)
	if err != nil {
		return nil, false, fmt.Errorf("create farmer: %w", err)
	}
	return farmer, true, nil
}

func (s *Store) CreateFarmer(ctx context.Context, externalID, name, phoneNumber string) (*Farmer, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO farmers (id, external_id, name, phone_number, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), now(), now())
		RETURNING `+farmerColumns,
		uuid.New(), externalID, name, phoneNumber,
	)
	farmer, err := scanFarmer(row)
	if err != nil {
		return nil, fmt.Errorf("insert farmer: %w", err)
	}
	return farmer, nil
}

func (s *Store) UpdateFarmer(ctx context.Context, id uuid.UUID, name, phoneNumber string) (*Farmer, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE farmers
		SET name = $2, phone_number = NULLIF($3, ''), updated_at = now()
		WHERE id = $1
		RETURNING `+farmerColumns,
		id, name, phoneNumber,
	)
	return scanFarmer(row)
}

func (s *Store) DeleteFarmer(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM farmers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete farmer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFarmers returns farmers, optionally filtered by a case-insensitive
// search over name and external id.
func (s *Store) ListFarmers(ctx context.Context, search string, skip, limit int) ([]Farmer, error) {
	query := `SELECT ` + farmerColumns + ` FROM farmers`
	args := []any{}
	if search != "" {
		query += ` WHERE name ILIKE $1 OR external_id ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC OFFSET $%d LIMIT $%d`, len(args)+1, len(args)+2)
	args = append(args, skip, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list farmers: %w", err)
	}
	defer rows.Close()

	var farmers []Farmer
	for rows.Next() {
		var f Farmer
		if err := rows.Scan(&f.ID, &f.ExternalID, &f.Name, &f.PhoneNumber, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan farmer: %w", err)
		}
		farmers = append(farmers, f)
	}
	return farmers, rows.Err()
}
