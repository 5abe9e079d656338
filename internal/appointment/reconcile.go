package appointment

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type ReconcileReport struct {
	Released  []BookedSlot
	Unindexed []Appointment
}

// Reconcile repairs the slot index against the appointment store. Slots
// still held by cancelled appointments are released; active appointments
// without a slot row are only reported, since a newer booking may already
// own that slot.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	released, err := s.repo.ReleaseCancelledSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("release cancelled slots: %w", err)
	}

	for _, slot := range released {
		s.log.Warn("released slot held by cancelled appointment",
			zap.String("appointment_id", slot.AppointmentID.String()),
			zap.String("doc_id", slot.DoctorID.String()),
			zap.String("slot_date", slot.SlotDate),
			zap.String("slot_time", slot.SlotTime),
		)
		s.logEvent(ctx, slot.AppointmentID, EventSlotReleased, map[string]any{
			"doc_id":    slot.DoctorID.String(),
			"slot_date": slot.SlotDate,
			"slot_time": slot.SlotTime,
		})
	}
	s.metrics.ReconciledSlots.Add(float64(len(released)))

	unindexed, err := s.repo.FindUnindexedAppointments(ctx)
	if err != nil {
		return nil, fmt.Errorf("find unindexed appointments: %w", err)
	}

	for _, appt := range unindexed {
		s.log.Error("active appointment has no booked slot",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("doc_id", appt.DocID.String()),
			zap.String("slot_date", appt.SlotDate),
			zap.String("slot_time", appt.SlotTime),
		)
		s.logEvent(ctx, appt.ID, EventSlotUnindexed, map[string]any{
			"doc_id":    appt.DocID.String(),
			"slot_date": appt.SlotDate,
			"slot_time": appt.SlotTime,
		})
	}
	s.metrics.UnindexedBooking.Set(float64(len(unindexed)))

	return &ReconcileReport{Released: released, Unindexed: unindexed}, nil
}
