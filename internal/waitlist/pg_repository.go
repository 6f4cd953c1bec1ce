package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var providerID *uuid.UUID
	var windows []byte

	err := row.Scan(
		&e.ID,
		&e.ClinicID,
		&e.PatientID,
		&e.TypeID,
		&providerID,
		&windows,
		&e.Urgent,
		&e.NoShowCount,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	e.ProviderID = providerID
	if len(windows) > 0 {
		if err := json.Unmarshal(windows, &e.Windows); err != nil {
			return nil, fmt.Errorf("decode entry windows: %w", err)
		}
	}
	return &e, nil
}

func scanOffer(row pgx.Row) (*Offer, error) {
	var o Offer

	err := row.Scan(
		&o.ID,
		&o.EntryID,
		&o.ClinicID,
		&o.TypeID,
		&o.ProviderID,
		&o.Interval.Start,
		&o.Interval.End,
		&o.Status,
		&o.ExpiresAt,
		&o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *PgRepository) CreateEntry(ctx context.Context, e *Entry) error {
	windows, err := json.Marshal(e.Windows)
	if err != nil {
		return fmt.Errorf("encode entry windows: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO waitlist_entries
			(id, clinic_id, patient_id, type_id, provider_id, windows, urgent, no_show_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, e.ID, e.ClinicID, e.PatientID, e.TypeID, e.ProviderID, windows, e.Urgent, e.NoShowCount, e.Status, e.CreatedAt)
	return err
}

func (r *PgRepository) GetEntry(ctx context.Context, clinicID, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, patient_id, type_id, provider_id, windows, urgent, no_show_count, status, created_at, updated_at
		FROM waitlist_entries
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id)
	return scanEntry(row)
}

func (r *PgRepository) ListWaiting(ctx context.Context, clinicID, typeID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, clinic_id, patient_id, type_id, provider_id, windows, urgent, no_show_count, status, created_at, updated_at
		FROM waitlist_entries
		WHERE clinic_id = $1 AND type_id = $2 AND status = 'waiting'
		ORDER BY created_at
	`, clinicID, typeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *PgRepository) UpdateEntryStatus(ctx context.Context, clinicID, id uuid.UUID, from, to EntryStatus) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $3,
		    updated_at = now()
		WHERE clinic_id = $1
		  AND id = $2
		  AND status = $4
		RETURNING id, clinic_id, patient_id, type_id, provider_id, windows, urgent, no_show_count, status, created_at, updated_at
	`, clinicID, id, to, from)
	return scanEntry(row)
}

func (r *PgRepository) CreateOffer(ctx context.Context, o *Offer) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO waitlist_offers
			(id, entry_id, clinic_id, type_id, provider_id, start_time, end_time, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, o.ID, o.EntryID, o.ClinicID, o.TypeID, o.ProviderID, o.Interval.Start, o.Interval.End, o.Status, o.ExpiresAt, o.CreatedAt)
	return err
}

func (r *PgRepository) GetOffer(ctx context.Context, clinicID, id uuid.UUID) (*Offer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, entry_id, clinic_id, type_id, provider_id, start_time, end_time, status, expires_at, created_at
		FROM waitlist_offers
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id)
	return scanOffer(row)
}

func (r *PgRepository) UpdateOfferStatus(ctx context.Context, clinicID, id uuid.UUID, from, to OfferStatus) (*Offer, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_offers
		SET status = $3
		WHERE clinic_id = $1
		  AND id = $2
		  AND status = $4
		RETURNING id, entry_id, clinic_id, type_id, provider_id, start_time, end_time, status, expires_at, created_at
	`, clinicID, id, to, from)
	return scanOffer(row)
}

func (r *PgRepository) FindExpiredOpenOffers(ctx context.Context, clinicID uuid.UUID, now time.Time) ([]Offer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entry_id, clinic_id, type_id, provider_id, start_time, end_time, status, expires_at, created_at
		FROM waitlist_offers
		WHERE clinic_id = $1 AND status = 'open' AND expires_at < $2
	`, clinicID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListClinics(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM clinics`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
