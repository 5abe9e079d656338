package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Cancel cancels an appointment on behalf of the patient who owns it.
func (s *Service) Cancel(ctx context.Context, appointmentID, patientID uuid.UUID) (*Appointment, error) {
	return s.cancel(ctx, appointmentID, Actor{Kind: ActorPatient, ID: patientID})
}

// CancelAsDoctor cancels an appointment booked with the given doctor.
func (s *Service) CancelAsDoctor(ctx context.Context, appointmentID, doctorID uuid.UUID) (*Appointment, error) {
	return s.cancel(ctx, appointmentID, Actor{Kind: ActorDoctor, ID: doctorID})
}

// CancelAsAdmin cancels any appointment.
func (s *Service) CancelAsAdmin(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	return s.cancel(ctx, appointmentID, Actor{Kind: ActorAdmin})
}

func (s *Service) cancel(ctx context.Context, appointmentID uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.doCancel(ctx, appointmentID, actor)
	s.metrics.Cancellations.WithLabelValues(string(actor.Kind), resultLabel(err)).Inc()
	return appt, err
}

func (s *Service) doCancel(ctx context.Context, appointmentID uuid.UUID, actor Actor) (*Appointment, error) {
	if appointmentID == uuid.Nil {
		return nil, ErrMissingData
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	switch actor.Kind {
	case ActorPatient:
		if appt.UserID != actor.ID {
			return nil, ErrUnauthorized
		}
	case ActorDoctor:
		if appt.DocID != actor.ID {
			return nil, ErrUnauthorized
		}
	case ActorAdmin:
	default:
		return nil, ErrUnauthorized
	}

	// Cancelling twice re-applies the same writes; the slot row is already gone.
	updated, err := s.repo.CancelAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	payload := map[string]any{
		"actor":     string(actor.Kind),
		"doc_id":    updated.DocID.String(),
		"slot_date": updated.SlotDate,
		"slot_time": updated.SlotTime,
	}
	if actor.ID != uuid.Nil {
		payload["actor_id"] = actor.ID.String()
	}
	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, payload)

	if updated.Payment {
		s.log.Warn("paid appointment cancelled, refund needs follow-up",
			zap.String("appointment_id", updated.ID.String()),
			zap.String("actor", string(actor.Kind)),
		)
		refund := map[string]any{"amount": updated.Amount}
		if updated.PaymentInfo != nil {
			refund["payment_id"] = updated.PaymentInfo.PaymentID
			refund["order_id"] = updated.PaymentInfo.OrderID
		}
		s.logEvent(ctx, updated.ID, EventCancelledAfterPaid, refund)
	}

	s.log.Info("appointment cancelled",
		zap.String("appointment_id", updated.ID.String()),
		zap.String("actor", string(actor.Kind)),
	)
	return updated, nil
}
