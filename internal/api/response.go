package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/prediction"
)

var validate = newValidator()

// newValidator reports fields by their JSON name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Success: false,
		Error:   code,
		Message: message,
	})
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes the error response itself and reports whether the caller may go on.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Tag() == "required" {
				writeError(w, http.StatusBadRequest, "missing_data", "missing "+fe.Field())
				return false
			}
			writeError(w, http.StatusBadRequest, "invalid_"+fe.Tag(), fe.Field()+" is not a valid "+fe.Tag())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return false
	}
	return true
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: a missing doctor is wrapped in ErrNotAvailable and must
// surface as not available.
var errorMappings = []errorMapping{
	{appointment.ErrMissingData, http.StatusBadRequest, "missing_data"},
	{appointment.ErrNotAvailable, http.StatusConflict, "doctor_not_available"},
	{appointment.ErrSlotTaken, http.StatusConflict, "slot_taken"},
	{appointment.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
	{appointment.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{appointment.ErrSignatureInvalid, http.StatusBadRequest, "signature_invalid"},
	{appointment.ErrOrderResolutionFailed, http.StatusBadGateway, "order_resolution_failed"},
	{appointment.ErrAppointmentUnavailable, http.StatusConflict, "appointment_unavailable"},
	{appointment.ErrAlreadyPaid, http.StatusConflict, "already_paid"},
	{appointment.ErrAppointmentCancelled, http.StatusConflict, "appointment_cancelled"},
	{appointment.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
	{appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
	{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},

	{prediction.ErrMissingData, http.StatusBadRequest, "missing_data"},
	{prediction.ErrInvalidProbability, http.StatusBadRequest, "invalid_probability"},
	{prediction.ErrInvalidVerdict, http.StatusBadRequest, "invalid_status"},
	{prediction.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{prediction.ErrPredictionNotFound, http.StatusNotFound, "prediction_not_found"},
	{prediction.ErrAlreadyUploaded, http.StatusConflict, "already_uploaded"},
	{prediction.ErrNotApproved, http.StatusConflict, "not_approved"},
	{prediction.ErrNotRejected, http.StatusConflict, "not_rejected"},
	{prediction.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{prediction.ErrLedgerDisabled, http.StatusServiceUnavailable, "ledger_disabled"},
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, m.target.Error())
			return
		}
	}

	h.log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", GetRequestID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
