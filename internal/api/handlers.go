package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/payment"
)

const webhookSignatureHeader = "X-Razorpay-Signature"

// Service is the booking core as seen by the HTTP layer.
type Service interface {
	Reserve(ctx context.Context, doctorID uuid.UUID, slotDate, slotTime string, patientID uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, appointmentID, patientID uuid.UUID) (*appointment.Appointment, error)
	CancelAsDoctor(ctx context.Context, appointmentID, doctorID uuid.UUID) (*appointment.Appointment, error)
	CancelAsAdmin(ctx context.Context, appointmentID uuid.UUID) (*appointment.Appointment, error)
	Complete(ctx context.Context, appointmentID, doctorID uuid.UUID) (*appointment.Appointment, error)

	CreatePaymentOrder(ctx context.Context, appointmentID, patientID uuid.UUID) (*payment.Order, error)
	VerifyCheckout(ctx context.Context, c appointment.CheckoutConfirmation) (*appointment.Appointment, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*appointment.WebhookResult, error)

	ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]appointment.Appointment, error)
	ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID) ([]appointment.Appointment, error)
	ListAppointments(ctx context.Context, limit, offset int) ([]appointment.Appointment, error)
	ListDoctors(ctx context.Context) ([]appointment.Doctor, error)
	ChangeAvailability(ctx context.Context, doctorID uuid.UUID) (*appointment.Doctor, error)
	Dashboard(ctx context.Context) (*appointment.Dashboard, error)
}

type Handler struct {
	svc         Service
	predictions PredictionService
	log         *zap.Logger
}

// NewHandler builds the HTTP handlers. predictions may be nil when the
// review workflow is not mounted.
func NewHandler(svc Service, predictions PredictionService, log *zap.Logger) *Handler {
	return &Handler{svc: svc, predictions: predictions, log: log}
}

// callerID is only called behind RequireRole.
func callerID(r *http.Request) uuid.UUID {
	id, _ := IdentityFrom(r.Context())
	return id.ID
}

// Patient

func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	appt, err := h.svc.Reserve(r.Context(), uuid.MustParse(req.DocID), req.SlotDate, req.SlotTime, callerID(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, AppointmentResponse{
		Success:     true,
		Message:     "Appointment Booked",
		Appointment: appt,
	})
}

func (h *Handler) ListMyAppointments(w http.ResponseWriter, r *http.Request) {
	appointments, err := h.svc.ListPatientAppointments(r.Context(), callerID(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AppointmentsResponse{Success: true, Appointments: appointments})
}

func (h *Handler) CancelMyAppointment(w http.ResponseWriter, r *http.Request) {
	var req AppointmentIDRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := h.svc.Cancel(r.Context(), uuid.MustParse(req.AppointmentID), callerID(r)); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Appointment Cancelled"})
}

func (h *Handler) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	var req AppointmentIDRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	order, err := h.svc.CreatePaymentOrder(r.Context(), uuid.MustParse(req.AppointmentID), callerID(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OrderResponse{Success: true, Order: order})
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req VerifyPaymentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	appt, err := h.svc.VerifyCheckout(r.Context(), appointment.CheckoutConfirmation{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AppointmentResponse{
		Success:     true,
		Message:     "Payment verified successfully",
		Appointment: appt,
	})
}

// Gateway

func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not read body")
		return
	}

	res, err := h.svc.HandleWebhook(r.Context(), body, r.Header.Get(webhookSignatureHeader))
	if err != nil {
		if errors.Is(err, appointment.ErrSignatureInvalid) {
			writeError(w, http.StatusBadRequest, "signature_invalid", "invalid webhook signature")
			return
		}
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{
		Success: true,
		Message: "Webhook processed",
		Event:   res.Event,
		Handled: res.Handled,
	})
}

// Public

func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.svc.ListDoctors(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	for i := range doctors {
		doctors[i].Email = ""
	}
	writeJSON(w, http.StatusOK, DoctorsResponse{Success: true, Doctors: doctors})
}

// Admin

func (h *Handler) AdminListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.svc.ListDoctors(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DoctorsResponse{Success: true, Doctors: doctors})
}

func (h *Handler) AdminListAppointments(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
		return
	}

	appointments, err := h.svc.ListAppointments(r.Context(), limit, offset)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AppointmentsResponse{Success: true, Appointments: appointments})
}

func (h *Handler) AdminCancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req AppointmentIDRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := h.svc.CancelAsAdmin(r.Context(), uuid.MustParse(req.AppointmentID)); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Appointment Cancelled"})
}

func (h *Handler) ChangeAvailability(w http.ResponseWriter, r *http.Request) {
	var req DoctorIDRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	doc, err := h.svc.ChangeAvailability(r.Context(), uuid.MustParse(req.DocID))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DoctorResponse{Success: true, Message: "Availability Changed", Doctor: doc})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.svc.Dashboard(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardResponse{Success: true, DashData: dash})
}

// Doctor

func (h *Handler) DoctorAppointments(w http.ResponseWriter, r *http.Request) {
	appointments, err := h.svc.ListDoctorAppointments(r.Context(), callerID(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AppointmentsResponse{Success: true, Appointments: appointments})
}

func (h *Handler) DoctorCompleteAppointment(w http.ResponseWriter, r *http.Request) {
	var req AppointmentIDRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := h.svc.Complete(r.Context(), uuid.MustParse(req.AppointmentID), callerID(r)); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Appointment Completed"})
}

func (h *Handler) DoctorCancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req AppointmentIDRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if _, err := h.svc.CancelAsDoctor(r.Context(), uuid.MustParse(req.AppointmentID), callerID(r)); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Appointment Cancelled"})
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
