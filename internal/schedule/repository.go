package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrTypeNotFound        = errors.New("appointment type not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSeriesNotFound      = errors.New("recurrence series not found")

	// ErrBookingConflict is returned by CreateAppointment when the atomic
	// commit gate rejects the insert because a concurrent winner already
	// holds an overlapping interval.
	ErrBookingConflict = errors.New("booking conflicts with a committed appointment")
)

// Repository contains all calendar-store interactions needed by the
// scheduling services. Every method is scoped by clinicID; cross-clinic data
// is never reachable through this interface.
type Repository interface {
	// ListClinics enumerates tenant ids for system-level sweeps; every
	// other method stays scoped to a single clinic.
	ListClinics(ctx context.Context) ([]uuid.UUID, error)

	GetProvider(ctx context.Context, clinicID, id uuid.UUID) (*Provider, error)
	GetResource(ctx context.Context, clinicID, id uuid.UUID) (*Resource, error)
	ListResources(ctx context.Context, clinicID uuid.UUID) ([]Resource, error)
	GetAppointmentType(ctx context.Context, clinicID, id uuid.UUID) (*AppointmentType, error)

	GetAppointment(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)

	// ListActiveOverlapping returns active appointments whose interval
	// overlaps iv and that involve the given provider, any of the given
	// resources, or the given patient. Zero-value ids are not matched.
	ListActiveOverlapping(ctx context.Context, clinicID uuid.UUID, iv Interval, providerID, patientID uuid.UUID, resourceIDs []uuid.UUID) ([]Appointment, error)

	// ListActiveInRange returns active appointments for a provider or
	// resource within iv, for calendar reads and availability subtraction.
	ListActiveInRange(ctx context.Context, clinicID uuid.UUID, iv Interval, providerID uuid.UUID, resourceID uuid.UUID) ([]Appointment, error)

	// CreateAppointment is the atomic commit gate: the insert fails with
	// ErrBookingConflict when any active row already overlaps the same
	// provider, patient, or resource interval.
	CreateAppointment(ctx context.Context, appt *Appointment) error

	// UpdateAppointmentStatus compares-and-swaps the status. It returns
	// ErrAppointmentNotFound when no row matches id+from, which callers
	// treat as a lost race.
	UpdateAppointmentStatus(ctx context.Context, clinicID, id uuid.UUID, from, to AppointmentStatus, cancelReason *string) (*Appointment, error)

	// BindResources attaches concrete resources to an appointment at
	// allocation time.
	BindResources(ctx context.Context, clinicID, apptID uuid.UUID, resourceIDs []uuid.UUID) error

	CreateSeries(ctx context.Context, series *RecurrenceSeries) error
	GetSeries(ctx context.Context, clinicID, id uuid.UUID) (*RecurrenceSeries, error)

	// FindOverdueConfirmed returns confirmed appointments that started
	// before startedBefore without a check-in, for the no-show sweep.
	FindOverdueConfirmed(ctx context.Context, clinicID uuid.UUID, startedBefore time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
