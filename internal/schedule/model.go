package schedule

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusCheckedIn  AppointmentStatus = "checked_in"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Active reports whether a status still holds its interval against the
// calendar. Cancelled and no-show appointments release their time.
func (s AppointmentStatus) Active() bool {
	return s != StatusCancelled && s != StatusNoShow
}

// Terminal statuses admit no further transitions.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type ResourceKind string

const (
	ResourceChair     ResourceKind = "chair"
	ResourceRoom      ResourceKind = "room"
	ResourceEquipment ResourceKind = "equipment"
)

type Provider struct {
	ID         uuid.UUID
	ClinicID   uuid.UUID
	Name       string
	Hours      WeekTemplate
	Blackouts  []Interval
	Capability []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Resource struct {
	ID         uuid.UUID
	ClinicID   uuid.UUID
	Name       string
	Kind       ResourceKind
	Hours      WeekTemplate
	Blackouts  []Interval
	Capability []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasCapabilities reports whether the resource carries every required tag.
func (r Resource) HasCapabilities(required []string) bool {
	for _, req := range required {
		found := false
		for _, tag := range r.Capability {
			if tag == req {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AppointmentType is immutable reference data.
type AppointmentType struct {
	ID           uuid.UUID
	ClinicID     uuid.UUID
	Name         string
	Duration     time.Duration
	BufferBefore time.Duration
	BufferAfter  time.Duration
	RequiredTags []string
}

// PaddedDuration is the calendar footprint of one appointment of this type,
// buffers included.
func (t AppointmentType) PaddedDuration() time.Duration {
	return t.BufferBefore + t.Duration + t.BufferAfter
}

type Appointment struct {
	ID           uuid.UUID
	ClinicID     uuid.UUID
	PatientID    uuid.UUID
	ProviderID   uuid.UUID
	ResourceIDs  []uuid.UUID
	TypeID       uuid.UUID
	Interval     Interval
	Status       AppointmentStatus
	SeriesID     *uuid.UUID
	CancelReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecurrenceSeries keeps the template from which instances were generated.
// Editing the template only affects instances not yet generated; existing
// instances never change retroactively.
type RecurrenceSeries struct {
	ID        uuid.UUID
	ClinicID  uuid.UUID
	Rule      RecurrenceRule
	TypeID    uuid.UUID
	CreatedAt time.Time
}

// EventLog is an append-only audit record. Rows are only ever inserted.
type EventLog struct {
	ID            int64
	ClinicID      uuid.UUID
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
