package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	ToggleDoctorAvailability(ctx context.Context, id uuid.UUID) (*Doctor, error)

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	// ReserveSlot stores the appointment and its booked slot row as one unit.
	// It returns ErrSlotTaken when the doctor/date/time is already indexed.
	ReserveSlot(ctx context.Context, appt *Appointment) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)
	ListAppointments(ctx context.Context, limit, offset int) ([]Appointment, error)

	// CancelAppointment sets cancelled and drops the booked slot row as one unit.
	CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// MarkPaid sets payment and paymentInfo. applied is false, and nothing is
	// written, when the appointment is already paid with the same payment id.
	MarkPaid(ctx context.Context, id uuid.UUID, info PaymentInfo) (appt *Appointment, applied bool, err error)

	// Reconciler
	ReleaseCancelledSlots(ctx context.Context) ([]BookedSlot, error)
	FindUnindexedAppointments(ctx context.Context) ([]Appointment, error)

	Stats(ctx context.Context) (Stats, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
