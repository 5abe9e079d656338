package api

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/payment"
	"github.com/hackgods/clinic-booking/internal/prediction"
)

type BookAppointmentRequest struct {
	DocID    string `json:"docId" validate:"required,uuid"`
	SlotDate string `json:"slotDate" validate:"required"`
	SlotTime string `json:"slotTime" validate:"required"`
}

type AppointmentIDRequest struct {
	AppointmentID string `json:"appointmentId" validate:"required,uuid"`
}

type DoctorIDRequest struct {
	DocID string `json:"docId" validate:"required,uuid"`
}

// VerifyPaymentRequest uses the field names the checkout widget posts.
type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

// SavePredictionRequest is posted by the prediction form. The submitter comes
// from the patient token when one is sent.
type SavePredictionRequest struct {
	Disease          string          `json:"disease" validate:"required"`
	UserInputs       json.RawMessage `json:"userInputs" validate:"required"`
	PredictionResult string          `json:"predictionResult" validate:"required"`
	Probability      *float64        `json:"probability" validate:"required"`
}

type PredictionIDRequest struct {
	PredictionID string `json:"predictionId" validate:"required,uuid"`
}

type AssignReviewRequest struct {
	PredictionID string `json:"predictionId" validate:"required,uuid"`
	DocID        string `json:"docId" validate:"required,uuid"`
}

type ReviewPredictionRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type AppointmentResponse struct {
	Success     bool                     `json:"success"`
	Message     string                   `json:"message,omitempty"`
	Appointment *appointment.Appointment `json:"appointment"`
}

type AppointmentsResponse struct {
	Success      bool                      `json:"success"`
	Appointments []appointment.Appointment `json:"appointments"`
}

type DoctorsResponse struct {
	Success bool                 `json:"success"`
	Doctors []appointment.Doctor `json:"doctors"`
}

type DoctorResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Doctor  *appointment.Doctor `json:"doctor"`
}

type OrderResponse struct {
	Success bool           `json:"success"`
	Order   *payment.Order `json:"order"`
}

type DashboardResponse struct {
	Success  bool                   `json:"success"`
	DashData *appointment.Dashboard `json:"dashData"`
}

type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
	Handled bool   `json:"handled"`
}

type SavePredictionResponse struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	PredictionID uuid.UUID `json:"predictionId"`
	Disease      string    `json:"disease"`
	Result       string    `json:"result"`
	Probability  float64   `json:"probability"`
}

type PredictionResponse struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message,omitempty"`
	TxHash     string                 `json:"txHash,omitempty"`
	Prediction *prediction.Prediction `json:"prediction"`
}

type PredictionsResponse struct {
	Success     bool                    `json:"success"`
	Predictions []prediction.Prediction `json:"predictions"`
}
