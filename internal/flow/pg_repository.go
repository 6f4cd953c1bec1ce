package flow

import (
	"context"
	"errors"
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

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	var appointmentID *uuid.UUID

	err := row.Scan(
		&v.ID,
		&v.ClinicID,
		&v.LocationID,
		&appointmentID,
		&v.PatientID,
		&v.State,
		&v.ArrivedAt,
		&v.Priority,
		&v.StateSince,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVisitNotFound
		}
		return nil, err
	}

	v.AppointmentID = appointmentID
	return &v, nil
}

const visitColumns = `id, clinic_id, location_id, appointment_id, patient_id, state, arrived_at, priority, state_since, created_at`

func (r *PgRepository) CreateVisit(ctx context.Context, v *Visit) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO visits (`+visitColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, v.ID, v.ClinicID, v.LocationID, v.AppointmentID, v.PatientID, v.State, v.ArrivedAt, v.Priority, v.StateSince, v.CreatedAt)
	return err
}

func (r *PgRepository) GetVisit(ctx context.Context, clinicID, id uuid.UUID) (*Visit, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id)
	return scanVisit(row)
}

func (r *PgRepository) UpdateVisitState(ctx context.Context, clinicID, id uuid.UUID, from, to VisitState, at time.Time) (*Visit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE visits
		SET state = $3,
		    state_since = $4
		WHERE clinic_id = $1
		  AND id = $2
		  AND state = $5
		RETURNING `+visitColumns,
		clinicID, id, to, at, from)

	v, err := scanVisit(row)
	if err != nil {
		return nil, err
	}

	// History rows are only ever inserted, never updated.
	_, err = tx.Exec(ctx, `
		INSERT INTO visit_transitions (visit_id, clinic_id, from_state, to_state, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, clinicID, from, to, at)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *PgRepository) ListInStates(ctx context.Context, clinicID, locationID uuid.UUID, states []VisitState) ([]Visit, error) {
	strs := make([]string, len(states))
	for i, s := range states {
		strs[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE clinic_id = $1
		  AND state = ANY($2)
		  AND ($3::uuid = '00000000-0000-0000-0000-000000000000' OR location_id = $3)
		ORDER BY arrived_at
	`, clinicID, strs, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListTransitions(ctx context.Context, clinicID, visitID uuid.UUID) ([]VisitTransition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, visit_id, clinic_id, from_state, to_state, occurred_at
		FROM visit_transitions
		WHERE clinic_id = $1 AND visit_id = $2
		ORDER BY id
	`, clinicID, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VisitTransition
	for rows.Next() {
		var t VisitTransition
		if err := rows.Scan(&t.ID, &t.VisitID, &t.ClinicID, &t.From, &t.To, &t.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, t)
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
