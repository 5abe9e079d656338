package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/payment"
)

const (
	WebhookPaymentCaptured   = "payment.captured"
	WebhookPaymentAuthorized = "payment.authorized"

	checkoutStatus = "captured_or_authorized"
	viaCheckout    = "checkout"
	viaWebhook     = "webhook"
)

// CheckoutConfirmation is what the client posts after a successful checkout.
type CheckoutConfirmation struct {
	OrderID   string
	PaymentID string
	Signature string
}

type WebhookResult struct {
	Event string
	// Handled is false for verified events that carry no payment transition.
	Handled     bool
	Appointment *Appointment
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// CreatePaymentOrder opens a gateway order for the appointment fee. The
// receipt carries the appointment id so both confirmation paths can find it.
func (s *Service) CreatePaymentOrder(ctx context.Context, appointmentID, patientID uuid.UUID) (*payment.Order, error) {
	if appointmentID == uuid.Nil || patientID == uuid.Nil {
		return nil, ErrMissingData
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrAppointmentUnavailable
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Cancelled {
		return nil, ErrAppointmentUnavailable
	}
	if appt.UserID != patientID {
		return nil, ErrUnauthorized
	}
	if appt.Payment {
		return nil, ErrAlreadyPaid
	}

	order, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   int64(math.Round(appt.Amount * 100)),
		Currency: s.cfg.Currency,
		Receipt:  appt.ID.String(),
		Notes: map[string]string{
			"userId": appt.UserID.String(),
			"docId":  appt.DocID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create payment order: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventPaymentOrderCreated, map[string]any{
		"order_id": order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
	})
	return order, nil
}

// VerifyCheckout confirms a payment reported by the client after checkout.
func (s *Service) VerifyCheckout(ctx context.Context, c CheckoutConfirmation) (*Appointment, error) {
	appt, err := s.verifyCheckout(ctx, c)
	s.metrics.Payments.WithLabelValues(viaCheckout, resultLabel(err)).Inc()
	return appt, err
}

func (s *Service) verifyCheckout(ctx context.Context, c CheckoutConfirmation) (*Appointment, error) {
	if c.OrderID == "" || c.PaymentID == "" || c.Signature == "" {
		return nil, ErrMissingData
	}
	if !payment.VerifyCheckout(s.cfg.RazorpayKeySecret, c.OrderID, c.PaymentID, c.Signature) {
		s.log.Warn("checkout signature mismatch", zap.String("order_id", c.OrderID))
		return nil, ErrSignatureInvalid
	}

	return s.confirmPayment(ctx, c.OrderID, PaymentInfo{
		OrderID:   c.OrderID,
		PaymentID: c.PaymentID,
		Signature: c.Signature,
		Status:    checkoutStatus,
	})
}

// HandleWebhook verifies a gateway webhook against its raw body and applies
// payment.captured and payment.authorized events.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	res, err := s.handleWebhook(ctx, body, signature)
	result := resultLabel(err)
	if err == nil && !res.Handled {
		result = "ignored"
	}
	s.metrics.Payments.WithLabelValues(viaWebhook, result).Inc()
	return res, err
}

func (s *Service) handleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if s.cfg.RazorpayWebhookSecret == "" {
		s.log.Error("webhook received but no webhook secret is configured")
		return nil, ErrSignatureInvalid
	}
	if !payment.VerifyWebhook(s.cfg.RazorpayWebhookSecret, body, signature) {
		s.log.Warn("webhook signature mismatch", zap.Int("body_bytes", len(body)))
		return nil, ErrSignatureInvalid
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode webhook: %w", ErrMissingData, err)
	}
	s.metrics.WebhookEvents.WithLabelValues(env.Event).Inc()

	res := &WebhookResult{Event: env.Event}
	if env.Event != WebhookPaymentCaptured && env.Event != WebhookPaymentAuthorized {
		s.log.Debug("ignoring webhook event", zap.String("event", env.Event))
		return res, nil
	}

	entity := env.Payload.Payment.Entity
	if entity.OrderID == "" || entity.ID == "" {
		return nil, ErrMissingData
	}

	appt, err := s.confirmPayment(ctx, entity.OrderID, PaymentInfo{
		OrderID:   entity.OrderID,
		PaymentID: entity.ID,
		Status:    env.Event,
		Via:       viaWebhook,
	})
	if err != nil {
		return nil, err
	}

	res.Handled = true
	res.Appointment = appt
	return res, nil
}

// confirmPayment resolves the order to its appointment and marks it paid.
// info needs OrderID, PaymentID and Status; amount and currency come from
// the gateway order.
func (s *Service) confirmPayment(ctx context.Context, orderID string, info PaymentInfo) (*Appointment, error) {
	order, err := s.gateway.FetchOrder(ctx, orderID)
	if err != nil {
		s.log.Error("fetch payment order failed", zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrOrderResolutionFailed, err)
	}
	if order.Receipt == "" {
		return nil, fmt.Errorf("%w: order %s has no receipt", ErrOrderResolutionFailed, orderID)
	}
	appointmentID, err := uuid.Parse(order.Receipt)
	if err != nil {
		return nil, fmt.Errorf("%w: receipt %q is not an appointment id", ErrOrderResolutionFailed, order.Receipt)
	}

	info.Amount = order.Amount
	info.Currency = order.Currency
	info.CreatedAt = s.now()

	appt, applied, err := s.repo.MarkPaid(ctx, appointmentID, info)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrOrderResolutionFailed, err)
		}
		return nil, fmt.Errorf("mark paid: %w", err)
	}

	if !applied {
		s.log.Info("payment already recorded",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("payment_id", info.PaymentID),
		)
		return appt, nil
	}

	s.logEvent(ctx, appt.ID, EventPaymentConfirmed, map[string]any{
		"order_id":   info.OrderID,
		"payment_id": info.PaymentID,
		"amount":     info.Amount,
		"status":     info.Status,
		"via":        info.Via,
	})

	if appt.Cancelled {
		s.log.Warn("payment confirmed on cancelled appointment, refund needs follow-up",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("payment_id", info.PaymentID),
		)
		s.logEvent(ctx, appt.ID, EventPaymentOnCancelled, map[string]any{
			"payment_id": info.PaymentID,
			"amount":     info.Amount,
		})
	}

	return appt, nil
}
