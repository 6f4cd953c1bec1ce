package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// exclusionViolation is the SQLSTATE raised by the overlap exclusion
// constraints on appointments and appointment_resources. It is the
// authoritative commit gate: whichever concurrent insert loses gets this.
const exclusionViolation = "23P01"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var hours, blackouts []byte

	err := row.Scan(
		&p.ID,
		&p.ClinicID,
		&p.Name,
		&hours,
		&blackouts,
		&p.Capability,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(hours, &p.Hours); err != nil {
		return nil, fmt.Errorf("decode provider hours: %w", err)
	}
	if len(blackouts) > 0 {
		if err := json.Unmarshal(blackouts, &p.Blackouts); err != nil {
			return nil, fmt.Errorf("decode provider blackouts: %w", err)
		}
	}
	return &p, nil
}

func scanResource(row pgx.Row) (*Resource, error) {
	var r Resource
	var hours, blackouts []byte

	err := row.Scan(
		&r.ID,
		&r.ClinicID,
		&r.Name,
		&r.Kind,
		&hours,
		&blackouts,
		&r.Capability,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(hours, &r.Hours); err != nil {
		return nil, fmt.Errorf("decode resource hours: %w", err)
	}
	if len(blackouts) > 0 {
		if err := json.Unmarshal(blackouts, &r.Blackouts); err != nil {
			return nil, fmt.Errorf("decode resource blackouts: %w", err)
		}
	}
	return &r, nil
}

func scanAppointmentType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	var durMin, beforeMin, afterMin int

	err := row.Scan(
		&t.ID,
		&t.ClinicID,
		&t.Name,
		&durMin,
		&beforeMin,
		&afterMin,
		&t.RequiredTags,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTypeNotFound
		}
		return nil, err
	}

	t.Duration = time.Duration(durMin) * time.Minute
	t.BufferBefore = time.Duration(beforeMin) * time.Minute
	t.BufferAfter = time.Duration(afterMin) * time.Minute
	return &t, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var seriesID *uuid.UUID
	var cancelReason *string

	err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.PatientID,
		&a.ProviderID,
		&a.TypeID,
		&a.Interval.Start,
		&a.Interval.End,
		&a.Status,
		&seriesID,
		&cancelReason,
		&a.ResourceIDs,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.SeriesID = seriesID
	a.CancelReason = cancelReason
	return &a, nil
}

const appointmentColumns = `
	a.id, a.clinic_id, a.patient_id, a.provider_id, a.type_id,
	a.start_time, a.end_time, a.status, a.series_id, a.cancel_reason,
	COALESCE((SELECT array_agg(ar.resource_id) FROM appointment_resources ar WHERE ar.appointment_id = a.id), '{}'),
	a.created_at, a.updated_at`

// Interface methods

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

func (r *PgRepository) GetProvider(ctx context.Context, clinicID, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, hours, blackouts, capability, created_at, updated_at
		FROM providers
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id)
	return scanProvider(row)
}

func (r *PgRepository) GetResource(ctx context.Context, clinicID, id uuid.UUID) (*Resource, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, kind, hours, blackouts, capability, created_at, updated_at
		FROM resources
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id)
	return scanResource(row)
}

func (r *PgRepository) ListResources(ctx context.Context, clinicID uuid.UUID) ([]Resource, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, clinic_id, name, kind, hours, blackouts, capability, created_at, updated_at
		FROM resources
		WHERE clinic_id = $1
		ORDER BY name
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func (r *PgRepository) GetAppointmentType(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, name, duration_minutes, buffer_before_minutes, buffer_after_minutes, required_tags
		FROM appointment_types
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id)
	return scanAppointmentType(row)
}

func (r *PgRepository) GetAppointment(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.clinic_id = $1 AND a.id = $2
	`, clinicID, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveOverlapping(ctx context.Context, clinicID uuid.UUID, iv Interval, providerID, patientID uuid.UUID, resourceIDs []uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.clinic_id = $1
		  AND a.status NOT IN ('cancelled', 'no_show')
		  AND a.start_time < $3
		  AND a.end_time > $2
		  AND (
		        a.provider_id = $4
		     OR a.patient_id = $5
		     OR EXISTS (
		          SELECT 1 FROM appointment_resources ar
		          WHERE ar.appointment_id = a.id AND ar.resource_id = ANY($6)
		        )
		  )
		ORDER BY a.start_time
	`, clinicID, iv.Start, iv.End, providerID, patientID, resourceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListActiveInRange(ctx context.Context, clinicID uuid.UUID, iv Interval, providerID uuid.UUID, resourceID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.clinic_id = $1
		  AND a.status NOT IN ('cancelled', 'no_show')
		  AND a.start_time < $3
		  AND a.end_time > $2
		  AND (
		        ($4::uuid != '00000000-0000-0000-0000-000000000000' AND a.provider_id = $4)
		     OR ($5::uuid != '00000000-0000-0000-0000-000000000000' AND EXISTS (
		          SELECT 1 FROM appointment_resources ar
		          WHERE ar.appointment_id = a.id AND ar.resource_id = $5
		        ))
		  )
		ORDER BY a.start_time
	`, clinicID, iv.Start, iv.End, providerID, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments
			(id, clinic_id, patient_id, provider_id, type_id, start_time, end_time, status, series_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`, appt.ID, appt.ClinicID, appt.PatientID, appt.ProviderID, appt.TypeID,
		appt.Interval.Start, appt.Interval.End, appt.Status, appt.SeriesID)
	if err != nil {
		return mapBookingErr(err)
	}

	for _, resID := range appt.ResourceIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO appointment_resources (appointment_id, clinic_id, resource_id, start_time, end_time, active)
			VALUES ($1, $2, $3, $4, $5, true)
		`, appt.ID, appt.ClinicID, resID, appt.Interval.Start, appt.Interval.End)
		if err != nil {
			return mapBookingErr(err)
		}
	}

	return tx.Commit(ctx)
}

func mapBookingErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return ErrBookingConflict
	}
	return err
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, clinicID, id uuid.UUID, from, to AppointmentStatus, cancelReason *string) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments a
		SET status = $3,
		    cancel_reason = COALESCE($4, cancel_reason),
		    updated_at = now()
		WHERE a.clinic_id = $1
		  AND a.id = $2
		  AND a.status = $5
		RETURNING `+appointmentColumns,
		clinicID, id, to, cancelReason, from)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	// Released intervals stop participating in the exclusion constraints.
	if !to.Active() {
		if _, err := tx.Exec(ctx, `
			UPDATE appointment_resources SET active = false
			WHERE clinic_id = $1 AND appointment_id = $2
		`, clinicID, id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) BindResources(ctx context.Context, clinicID, apptID uuid.UUID, resourceIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var start, end time.Time
	err = tx.QueryRow(ctx, `
		SELECT start_time, end_time FROM appointments
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, apptID).Scan(&start, &end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return err
	}

	for _, resID := range resourceIDs {
		_, err = tx.Exec(ctx, `
			INSERT INTO appointment_resources (appointment_id, clinic_id, resource_id, start_time, end_time, active)
			VALUES ($1, $2, $3, $4, $5, true)
			ON CONFLICT (appointment_id, resource_id) DO NOTHING
		`, apptID, clinicID, resID, start, end)
		if err != nil {
			return mapBookingErr(err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) CreateSeries(ctx context.Context, series *RecurrenceSeries) error {
	rule, err := json.Marshal(series.Rule)
	if err != nil {
		return fmt.Errorf("encode recurrence rule: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO recurrence_series (id, clinic_id, rule, type_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, series.ID, series.ClinicID, rule, series.TypeID, series.CreatedAt)
	return err
}

func (r *PgRepository) GetSeries(ctx context.Context, clinicID, id uuid.UUID) (*RecurrenceSeries, error) {
	var s RecurrenceSeries
	var rule []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, clinic_id, rule, type_id, created_at
		FROM recurrence_series
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, id).Scan(&s.ID, &s.ClinicID, &rule, &s.TypeID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSeriesNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(rule, &s.Rule); err != nil {
		return nil, fmt.Errorf("decode recurrence rule: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) FindOverdueConfirmed(ctx context.Context, clinicID uuid.UUID, startedBefore time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.clinic_id = $1
		  AND a.status = 'confirmed'
		  AND a.start_time < $2
	`, clinicID, startedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (clinic_id, event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.ClinicID, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
