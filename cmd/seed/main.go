package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/practiceops/clinic-scheduling/internal/db"
	"github.com/practiceops/clinic-scheduling/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 0)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := ensureSchema(context.Background(), pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	clinicIDs, err := seedClinics(context.Background(), pool, 3)
	if err != nil {
		log.Fatalf("seed clinics: %v", err)
	}
	for _, clinicID := range clinicIDs {
		if err := seedClinic(context.Background(), pool, clinicID); err != nil {
			log.Fatalf("seed clinic %s: %v", clinicID, err)
		}
	}

	log.Println("seed complete")
}

// ensureSchema creates every table the services read and write. The overlap
// exclusion constraints on appointments and appointment_resources are the
// commit gate for double bookings, so they live here with the tables rather
// than in application code.
func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS btree_gist`,

		`CREATE TABLE IF NOT EXISTS clinics (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS providers (
			id uuid PRIMARY KEY,
			clinic_id uuid NOT NULL REFERENCES clinics(id),
			name text NOT NULL,
			hours jsonb NOT NULL,
			blackouts jsonb,
			capability text[] NOT NULL DEFAULT '{}',
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS resources (
			id uuid PRIMARY KEY,
			clinic_id uuid NOT NULL REFERENCES clinics(id),
			name text NOT NULL,
			kind text NOT NULL,
			hours jsonb NOT NULL,
			blackouts jsonb,
			capability text[] NOT NULL DEFAULT '{}',
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS appointment_types (
			id uuid PRIMARY KEY,
			clinic_id uuid NOT NULL REFERENCES clinics(id),
			name text NOT NULL,
			duration_minutes int NOT NULL,
			buffer_before_minutes int NOT NULL DEFAULT 0,
			buffer_after_minutes int NOT NULL DEFAULT 0,
			required_tags text[] NOT NULL DEFAULT '{}'
		)`,

		`CREATE TABLE IF NOT EXISTS recurrence_series (
			id uuid PRIMARY KEY,
			clinic_id uuid NOT NULL REFERENCES clinics(id),
			rule jsonb NOT NULL,
			type_id uuid NOT NULL REFERENCES appointment_types(id),
			created_at timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id uuid PRIMARY KEY,
			clinic_id uuid NOT NULL REFERENCES clinics(id),
			patient_id uuid NOT NULL,
			provider_id uuid NOT NULL REFERENCES providers(id),
			type_id uuid NOT NULL REFERENCES appointment_types(id),
			start_time timestamptz NOT NULL,
			end_time timestamptz NOT NULL,
			status text NOT NULL,
			series_id uuid REFERENCES recurrence_series(id),
			cancel_reason text,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now(),
			CHECK (start_time < end_time),
			CONSTRAINT no_provider_overlap EXCLUDE USING gist (
				provider_id WITH =,
				tstzrange(start_time, end_time) WITH &&
			) WHERE (status NOT IN ('cancelled', 'no_show')),
			CONSTRAINT no_patient_overlap EXCLUDE USING gist (
				patient_id WITH =,
				tstzrange(start_time, end_time) WITH &&
			) WHERE (status NOT IN ('cancelled', 'no_show'))
		)`,

		`CREATE INDEX IF NOT EXISTS idx_appointments_clinic_time
			ON appointments (clinic_id, start_time)`,

		`CREATE TABLE IF NOT EXISTS appointment_resources (
			appointment_id uuid NOT NULL REFERENCES appointments(id),
			clinic_id uuid NOT NULL REFERENCES clinics(id),
			resource_id uuid NOT NULL REFERENCES resources(id),
			start_time timestamptz NOT NULL,
			end_time timestamptz NOT NULL,
			active boolean NOT NULL DEFAULT true,
			UNIQUE (appointment_id, resource_id),
			CONSTRAINT no_resource_overlap EXCLUDE USING gist (
				resource_id WITH =,
				tstzrange(start_time, end_time) WITH &&
			) WHERE (active)
		)`,

		`CREATE TABLE IF NOT EXISTS event_logs (
			id bigserial PRIMARY KEY,
			clinic_id uuid NOT NULL,
			event_type text NOT NULL,
			appointment_id uuid,
			payload jsonb,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS waitlist_entries (
			id uuid PRIMARY KEY,
			clinic_id uuid NOT NULL REFERENCES clinics(id),
			patient_id uuid NOT NULL,
			type_id uuid NOT NULL REFERENCES appointment_types(id),
			provider_id uuid REFERENCES providers(id),
			windows jsonb,
			urgent boolean NOT NULL DEFAULT false,
			no_show_count int NOT NULL DEFAULT 0,
			status text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS waitlist_offers (
			id uuid PRIMARY KEY,
			entry_id uuid NOT NULL REFERENCES waitlist_entries(id),
			clinic_id uuid NOT NULL REFERENCES clinics(id),
			type_id uuid NOT NULL REFERENCES appointment_types(id),
			provider_id uuid NOT NULL REFERENCES providers(id),
			start_time timestamptz NOT NULL,
			end_time timestamptz NOT NULL,
			status text NOT NULL,
			expires_at timestamptz NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS visits (
			id uuid PRIMARY KEY,
			clinic_id uuid NOT NULL REFERENCES clinics(id),
			location_id uuid NOT NULL,
			appointment_id uuid REFERENCES appointments(id),
			patient_id uuid NOT NULL,
			state text NOT NULL,
			arrived_at timestamptz NOT NULL,
			priority boolean NOT NULL DEFAULT false,
			state_since timestamptz NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS visit_transitions (
			id bigserial PRIMARY KEY,
			visit_id uuid NOT NULL REFERENCES visits(id),
			clinic_id uuid NOT NULL,
			from_state text NOT NULL,
			to_state text NOT NULL,
			occurred_at timestamptz NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clinics", count)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Dental"

		_, err := pool.Exec(ctx, `
			INSERT INTO clinics (id, name, created_at)
			VALUES ($1, $2, now())
		`, id, name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// weekdayHours is Monday through Friday 09:00-17:00 with a 12:00-13:00 break.
func weekdayHours() schedule.WeekTemplate {
	days := map[time.Weekday][]schedule.DayWindow{}
	breaks := map[time.Weekday][]schedule.DayWindow{}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		days[wd] = []schedule.DayWindow{{OpenMinute: 9 * 60, CloseMinute: 17 * 60}}
		breaks[wd] = []schedule.DayWindow{{OpenMinute: 12 * 60, CloseMinute: 13 * 60}}
	}
	return schedule.WeekTemplate{Days: days, Breaks: breaks}
}

func seedClinic(ctx context.Context, pool *pgxpool.Pool, clinicID uuid.UUID) error {
	hours, err := json.Marshal(weekdayHours())
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	providerCaps := [][]string{
		{"general"},
		{"general", "hygiene"},
		{"general", "surgery"},
		{"orthodontics"},
	}
	for _, caps := range providerCaps {
		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, clinic_id, name, hours, capability, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, uuid.New(), clinicID, "Dr. "+gofakeit.LastName(), hours, caps)
		if err != nil {
			return err
		}
	}

	resources := []struct {
		kind schedule.ResourceKind
		name string
		caps []string
	}{
		{schedule.ResourceChair, "Chair 1", []string{"hygiene"}},
		{schedule.ResourceChair, "Chair 2", []string{"hygiene"}},
		{schedule.ResourceChair, "Chair 3", nil},
		{schedule.ResourceRoom, "Surgery Room", []string{"surgery"}},
		{schedule.ResourceEquipment, "X-Ray Unit", []string{"xray"}},
	}
	for _, r := range resources {
		caps := r.caps
		if caps == nil {
			caps = []string{}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO resources (id, clinic_id, name, kind, hours, capability, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, uuid.New(), clinicID, r.name, r.kind, hours, caps)
		if err != nil {
			return err
		}
	}

	types := []struct {
		name    string
		minutes int
		before  int
		after   int
		tags    []string
	}{
		{"Checkup", 30, 0, 0, []string{}},
		{"Cleaning", 45, 0, 15, []string{"hygiene"}},
		{"Extraction", 60, 15, 15, []string{"surgery"}},
		{"X-Ray", 15, 0, 0, []string{"xray"}},
	}
	for _, t := range types {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_types
				(id, clinic_id, name, duration_minutes, buffer_before_minutes, buffer_after_minutes, required_tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New(), clinicID, t.name, t.minutes, t.before, t.after, t.tags)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("clinic %s seeded", clinicID)
	return nil
}
