package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/payment"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventCancelledAfterPaid   = "APPOINTMENT_CANCELLED_AFTER_PAYMENT"
	EventPaymentOrderCreated  = "PAYMENT_ORDER_CREATED"
	EventPaymentConfirmed     = "PAYMENT_CONFIRMED"
	EventPaymentOnCancelled   = "PAYMENT_ON_CANCELLED_APPOINTMENT"
	EventSlotReleased         = "SLOT_RELEASED_BY_RECONCILER"
	EventSlotUnindexed        = "APPOINTMENT_SLOT_UNINDEXED"
)

var (
	ErrNotAvailable           = errors.New("doctor not available")
	ErrSlotTaken              = errors.New("slot not available")
	ErrSlotBeingBooked        = errors.New("slot is currently being booked, please retry")
	ErrUnauthorized           = errors.New("unauthorized action")
	ErrMissingData            = errors.New("missing data")
	ErrSignatureInvalid       = errors.New("signature verification failed")
	ErrOrderResolutionFailed  = errors.New("payment order could not be resolved to an appointment")
	ErrAppointmentUnavailable = errors.New("appointment cancelled or not found")
	ErrAlreadyPaid            = errors.New("appointment already paid")
	ErrAppointmentCancelled   = errors.New("appointment is cancelled")
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	gateway payment.Gateway
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, gateway payment.Gateway, cfg config.Config, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		locker:  locker,
		gateway: gateway,
		cfg:     cfg,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Reserve books slotTime on slotDate with the given doctor for a patient.
// The slot is arbitrated twice: a per-slot lock keeps concurrent requests out
// of the critical section, and the slot index rejects a second row for the
// same doctor/date/time even if the lock expires mid-flight.
func (s *Service) Reserve(ctx context.Context, doctorID uuid.UUID, slotDate, slotTime string, patientID uuid.UUID) (*Appointment, error) {
	appt, err := s.reserve(ctx, doctorID, slotDate, slotTime, patientID)
	s.metrics.Reservations.WithLabelValues(resultLabel(err)).Inc()
	return appt, err
}

func (s *Service) reserve(ctx context.Context, doctorID uuid.UUID, slotDate, slotTime string, patientID uuid.UUID) (*Appointment, error) {
	if doctorID == uuid.Nil || patientID == uuid.Nil || slotDate == "" || slotTime == "" {
		return nil, ErrMissingData
	}

	doc, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotAvailable, err)
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doc.Available {
		return nil, ErrNotAvailable
	}

	// Fast path; the index insert below is the authoritative check.
	if slices.Contains(doc.SlotsBooked[slotDate], slotTime) {
		return nil, ErrSlotTaken
	}

	patient, err := s.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	key := redisclient.SlotKey{DoctorID: doctorID, SlotDate: slotDate, SlotTime: slotTime}
	var created *Appointment

	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		appt := &Appointment{
			ID:       uuid.New(),
			UserID:   patientID,
			DocID:    doctorID,
			UserData: patient.Snapshot(),
			DocData:  doc.Snapshot(),
			Amount:   doc.Fees,
			SlotDate: slotDate,
			SlotTime: slotTime,
			Date:     s.now().UnixMilli(),
		}

		stored, err := s.repo.ReserveSlot(lockCtx, appt)
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return err
			}
			return fmt.Errorf("reserve slot: %w", err)
		}
		created = stored

		s.logEvent(lockCtx, stored.ID, EventAppointmentBooked, map[string]any{
			"doc_id":    doctorID.String(),
			"user_id":   patientID.String(),
			"slot_date": slotDate,
			"slot_time": slotTime,
			"amount":    stored.Amount,
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.log.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("doc_id", doctorID.String()),
		zap.String("slot", key.String()),
	)
	return created, nil
}

// Complete marks an appointment as clinically completed by its doctor.
func (s *Service) Complete(ctx context.Context, appointmentID, doctorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.DocID != doctorID {
		return nil, ErrUnauthorized
	}
	if appt.Cancelled {
		return nil, ErrAppointmentCancelled
	}

	updated, err := s.repo.CompleteAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{"doc_id": doctorID.String()})
	return updated, nil
}

// ListPatientAppointments returns every appointment of a patient, newest first.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

func (s *Service) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	appointments, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}

// ListAppointments pages through all appointments for the admin panel.
func (s *Service) ListAppointments(ctx context.Context, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointments(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]Doctor, error) {
	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return doctors, nil
}

// ChangeAvailability flips whether the doctor accepts new bookings.
func (s *Service) ChangeAvailability(ctx context.Context, doctorID uuid.UUID) (*Doctor, error) {
	doc, err := s.repo.ToggleDoctorAvailability(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("toggle availability: %w", err)
	}
	s.log.Info("doctor availability changed",
		zap.String("doc_id", doctorID.String()),
		zap.Bool("available", doc.Available),
	)
	return doc, nil
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	latest, err := s.repo.ListAppointments(ctx, 5, 0)
	if err != nil {
		return nil, fmt.Errorf("dashboard latest appointments: %w", err)
	}

	return &Dashboard{
		Doctors:            stats.Doctors,
		Appointments:       stats.Appointments,
		Patients:           stats.Patients,
		Earnings:           stats.Earnings,
		LatestAppointments: latest,
	}, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	// The event log must survive the caller's deadline.
	if err := s.repo.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Error("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrSlotBeingBooked):
		return "conflict"
	case errors.Is(err, ErrNotAvailable):
		return "not_available"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrMissingData):
		return "missing_data"
	case errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	default:
		return "error"
	}
}
