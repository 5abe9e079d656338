package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/payment"
)

func flipLastBit(s string) string {
	b := []byte(s)
	b[len(b)-1] ^= 0x01
	return string(b)
}

func webhookBody(t *testing.T, event, orderID, paymentID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"entity": "event",
		"event":  event,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       paymentID,
					"order_id": orderID,
					"amount":   50000,
					"currency": "INR",
					"status":   "captured",
				},
			},
		},
	})
	require.NoError(t, err)
	return body
}

func (f *fixture) orderFor(t *testing.T, appt *Appointment) *payment.Order {
	t.Helper()
	order, err := f.svc.CreatePaymentOrder(context.Background(), appt.ID, appt.UserID)
	require.NoError(t, err)
	return order
}

func TestCreatePaymentOrder(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")

	order := f.orderFor(t, appt)

	assert.Equal(t, int64(50000), order.Amount)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, appt.ID.String(), order.Receipt)
	assert.Equal(t, appt.UserID.String(), order.Notes["userId"])
	assert.Equal(t, appt.DocID.String(), order.Notes["docId"])
	assert.Contains(t, f.eventTypes(), EventPaymentOrderCreated)
}

func TestCreatePaymentOrder_RoundsToMinorUnits(t *testing.T) {
	f := newFixture(t)
	odd := f.doctor
	odd.Fees = 199.99
	f.repo.AddDoctor(odd)

	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	order := f.orderFor(t, appt)
	assert.Equal(t, int64(19999), order.Amount)
}

func TestCreatePaymentOrder_Refusals(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	ctx := context.Background()

	_, err := f.svc.CreatePaymentOrder(ctx, uuid.Nil, f.patient.ID)
	assert.ErrorIs(t, err, ErrMissingData)

	_, err = f.svc.CreatePaymentOrder(ctx, uuid.New(), f.patient.ID)
	assert.ErrorIs(t, err, ErrAppointmentUnavailable)

	_, err = f.svc.CreatePaymentOrder(ctx, appt.ID, f.other.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, _, err = f.repo.MarkPaid(ctx, appt.ID, PaymentInfo{PaymentID: "pay_1"})
	require.NoError(t, err)
	_, err = f.svc.CreatePaymentOrder(ctx, appt.ID, f.patient.ID)
	assert.ErrorIs(t, err, ErrAlreadyPaid)

	cancelled := f.reserve(t, "5_6_2025", "11:00 AM")
	_, err = f.svc.Cancel(ctx, cancelled.ID, f.patient.ID)
	require.NoError(t, err)
	_, err = f.svc.CreatePaymentOrder(ctx, cancelled.ID, f.patient.ID)
	assert.ErrorIs(t, err, ErrAppointmentUnavailable)
}

func TestVerifyCheckout_MarksPaid(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	order := f.orderFor(t, appt)

	sig := payment.CheckoutSignature(testKeySecret, order.ID, "pay_1")
	paid, err := f.svc.VerifyCheckout(context.Background(), CheckoutConfirmation{
		OrderID:   order.ID,
		PaymentID: "pay_1",
		Signature: sig,
	})
	require.NoError(t, err)

	assert.True(t, paid.Payment)
	require.NotNil(t, paid.PaymentInfo)
	assert.Equal(t, order.ID, paid.PaymentInfo.OrderID)
	assert.Equal(t, "pay_1", paid.PaymentInfo.PaymentID)
	assert.Equal(t, sig, paid.PaymentInfo.Signature)
	assert.Equal(t, int64(50000), paid.PaymentInfo.Amount)
	assert.Equal(t, "INR", paid.PaymentInfo.Currency)
	assert.Equal(t, "captured_or_authorized", paid.PaymentInfo.Status)
	assert.Empty(t, paid.PaymentInfo.Via)
	assert.Contains(t, f.eventTypes(), EventPaymentConfirmed)
}

func TestVerifyCheckout_TamperedSignature(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	order := f.orderFor(t, appt)

	sig := payment.CheckoutSignature(testKeySecret, order.ID, "pay_1")
	_, err := f.svc.VerifyCheckout(context.Background(), CheckoutConfirmation{
		OrderID:   order.ID,
		PaymentID: "pay_1",
		Signature: flipLastBit(sig),
	})
	require.ErrorIs(t, err, ErrSignatureInvalid)

	stored, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.False(t, stored.Payment)
	assert.Nil(t, stored.PaymentInfo)
}

func TestVerifyCheckout_MissingData(t *testing.T) {
	f := newFixture(t)

	for _, c := range []CheckoutConfirmation{
		{PaymentID: "pay_1", Signature: "x"},
		{OrderID: "order_1", Signature: "x"},
		{OrderID: "order_1", PaymentID: "pay_1"},
	} {
		_, err := f.svc.VerifyCheckout(context.Background(), c)
		assert.ErrorIs(t, err, ErrMissingData)
	}
}

func TestVerifyCheckout_OrderResolutionFailed(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	ctx := context.Background()

	confirm := func(orderID string) error {
		_, err := f.svc.VerifyCheckout(ctx, CheckoutConfirmation{
			OrderID:   orderID,
			PaymentID: "pay_1",
			Signature: payment.CheckoutSignature(testKeySecret, orderID, "pay_1"),
		})
		return err
	}

	t.Run("unknown order", func(t *testing.T) {
		assert.ErrorIs(t, confirm("order_missing"), ErrOrderResolutionFailed)
	})

	t.Run("no receipt", func(t *testing.T) {
		f.gateway.Put(payment.Order{ID: "order_noreceipt", Amount: 50000, Currency: "INR"})
		assert.ErrorIs(t, confirm("order_noreceipt"), ErrOrderResolutionFailed)
	})

	t.Run("receipt is not an appointment", func(t *testing.T) {
		f.gateway.Put(payment.Order{ID: "order_bad", Receipt: "rcpt_42"})
		assert.ErrorIs(t, confirm("order_bad"), ErrOrderResolutionFailed)
	})

	t.Run("receipt points nowhere", func(t *testing.T) {
		f.gateway.Put(payment.Order{ID: "order_gone", Receipt: uuid.NewString()})
		assert.ErrorIs(t, confirm("order_gone"), ErrOrderResolutionFailed)
	})

	t.Run("gateway down", func(t *testing.T) {
		f.gateway.Put(payment.Order{ID: "order_ok", Receipt: appt.ID.String()})
		f.gateway.FetchErr = errors.New("connection reset")
		defer func() { f.gateway.FetchErr = nil }()
		assert.ErrorIs(t, confirm("order_ok"), ErrOrderResolutionFailed)
	})

	stored, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.False(t, stored.Payment)
}

func TestHandleWebhook_MarksPaidViaWebhook(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	order := f.orderFor(t, appt)

	body := webhookBody(t, WebhookPaymentCaptured, order.ID, "pay_1")
	res, err := f.svc.HandleWebhook(context.Background(), body, payment.Sign(testWebhookSecret, body))
	require.NoError(t, err)

	assert.True(t, res.Handled)
	assert.Equal(t, WebhookPaymentCaptured, res.Event)
	require.NotNil(t, res.Appointment)
	assert.True(t, res.Appointment.Payment)
	assert.Equal(t, "webhook", res.Appointment.PaymentInfo.Via)
	assert.Equal(t, WebhookPaymentCaptured, res.Appointment.PaymentInfo.Status)
	assert.Equal(t, "pay_1", res.Appointment.PaymentInfo.PaymentID)
	assert.Empty(t, res.Appointment.PaymentInfo.Signature)
}

func TestHandleWebhook_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	order := f.orderFor(t, appt)

	body := webhookBody(t, WebhookPaymentAuthorized, order.ID, "pay_1")
	sig := payment.Sign(testWebhookSecret, body)

	_, err := f.svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	first, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	res, err := f.svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.True(t, res.Handled)

	second, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.True(t, second.Payment)
	assert.Equal(t, first.PaymentInfo, second.PaymentInfo)

	confirmed := 0
	for _, ev := range f.eventTypes() {
		if ev == EventPaymentConfirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)
}

func TestHandleWebhook_AfterCheckoutKeepsCheckoutRecord(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	order := f.orderFor(t, appt)

	_, err := f.svc.VerifyCheckout(context.Background(), CheckoutConfirmation{
		OrderID:   order.ID,
		PaymentID: "pay_1",
		Signature: payment.CheckoutSignature(testKeySecret, order.ID, "pay_1"),
	})
	require.NoError(t, err)

	body := webhookBody(t, WebhookPaymentCaptured, order.ID, "pay_1")
	res, err := f.svc.HandleWebhook(context.Background(), body, payment.Sign(testWebhookSecret, body))
	require.NoError(t, err)
	assert.Equal(t, "captured_or_authorized", res.Appointment.PaymentInfo.Status)
	assert.Empty(t, res.Appointment.PaymentInfo.Via)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	order := f.orderFor(t, appt)

	body := webhookBody(t, WebhookPaymentCaptured, order.ID, "pay_1")
	sig := payment.Sign(testWebhookSecret, body)

	for name, s := range map[string]string{
		"flipped":    flipLastBit(sig),
		"empty":      "",
		"key secret": payment.Sign(testKeySecret, body),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.HandleWebhook(context.Background(), body, s)
			assert.ErrorIs(t, err, ErrSignatureInvalid)
		})
	}

	stored, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.False(t, stored.Payment)
}

func TestHandleWebhook_NoSecretConfigured(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.RazorpayWebhookSecret = ""

	body := webhookBody(t, WebhookPaymentCaptured, "order_1", "pay_1")
	_, err := f.svc.HandleWebhook(context.Background(), body, payment.Sign("", body))
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestHandleWebhook_IgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	order := f.orderFor(t, appt)

	body := webhookBody(t, "payment.failed", order.ID, "pay_1")
	res, err := f.svc.HandleWebhook(context.Background(), body, payment.Sign(testWebhookSecret, body))
	require.NoError(t, err)
	assert.False(t, res.Handled)
	assert.Equal(t, "payment.failed", res.Event)

	stored, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.False(t, stored.Payment)
}

func TestHandleWebhook_MalformedPayload(t *testing.T) {
	f := newFixture(t)

	body := []byte(`{"event": "payment.captured", "payload": `)
	_, err := f.svc.HandleWebhook(context.Background(), body, payment.Sign(testWebhookSecret, body))
	assert.ErrorIs(t, err, ErrMissingData)

	body = webhookBody(t, WebhookPaymentCaptured, "", "pay_1")
	_, err = f.svc.HandleWebhook(context.Background(), body, payment.Sign(testWebhookSecret, body))
	assert.ErrorIs(t, err, ErrMissingData)
}

func TestConfirmPayment_OnCancelledAppointmentIsRecorded(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	order := f.orderFor(t, appt)

	_, err := f.svc.Cancel(context.Background(), appt.ID, f.patient.ID)
	require.NoError(t, err)

	body := webhookBody(t, WebhookPaymentCaptured, order.ID, "pay_1")
	res, err := f.svc.HandleWebhook(context.Background(), body, payment.Sign(testWebhookSecret, body))
	require.NoError(t, err)

	assert.True(t, res.Appointment.Payment)
	assert.True(t, res.Appointment.Cancelled)
	assert.Contains(t, f.eventTypes(), EventPaymentOnCancelled)
	assert.Empty(t, f.slotsOn(t, "5_6_2025"))
}
