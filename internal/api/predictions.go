package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/prediction"
)

// PredictionService is the prediction review workflow as seen by the HTTP layer.
type PredictionService interface {
	Save(ctx context.Context, in prediction.SaveInput) (*prediction.Prediction, error)
	List(ctx context.Context) ([]prediction.Prediction, error)
	ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]prediction.Prediction, error)
	SendForReview(ctx context.Context, predictionID, doctorID uuid.UUID) (*prediction.Prediction, error)
	Review(ctx context.Context, predictionID, doctorID uuid.UUID, verdict prediction.Status) (*prediction.Prediction, error)
	Upload(ctx context.Context, predictionID uuid.UUID) (*prediction.Prediction, error)
	Delete(ctx context.Context, predictionID uuid.UUID) error
	ForceDelete(ctx context.Context, predictionID uuid.UUID) error
}

// predictionParam parses the {predictionId} route parameter, writing a 400
// when it is not a uuid.
func predictionParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "predictionId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_uuid", "predictionId is not a valid uuid")
		return uuid.Nil, false
	}
	return id, true
}

// SavePrediction is open to guests; a patient token attributes the result.
func (h *Handler) SavePrediction(w http.ResponseWriter, r *http.Request) {
	var req SavePredictionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	in := prediction.SaveInput{
		Disease:          req.Disease,
		Inputs:           req.UserInputs,
		PredictionResult: req.PredictionResult,
		Probability:      *req.Probability,
	}
	if id, ok := IdentityFrom(r.Context()); ok {
		in.UserID = &id.ID
	}

	p, err := h.predictions.Save(r.Context(), in)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, SavePredictionResponse{
		Success:      true,
		Message:      "Prediction saved successfully",
		PredictionID: p.ID,
		Disease:      p.Disease,
		Result:       p.PredictionResult,
		Probability:  p.Probability,
	})
}

// Admin

func (h *Handler) AdminListPredictions(w http.ResponseWriter, r *http.Request) {
	predictions, err := h.predictions.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PredictionsResponse{Success: true, Predictions: predictions})
}

func (h *Handler) SendPredictionForReview(w http.ResponseWriter, r *http.Request) {
	predictionID, ok := predictionParam(w, r)
	if !ok {
		return
	}
	var req DoctorIDRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.assignReviewer(w, r, predictionID, uuid.MustParse(req.DocID))
}

func (h *Handler) AssignPredictionReviewer(w http.ResponseWriter, r *http.Request) {
	var req AssignReviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	h.assignReviewer(w, r, uuid.MustParse(req.PredictionID), uuid.MustParse(req.DocID))
}

func (h *Handler) assignReviewer(w http.ResponseWriter, r *http.Request, predictionID, doctorID uuid.UUID) {
	p, err := h.predictions.SendForReview(r.Context(), predictionID, doctorID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PredictionResponse{
		Success:    true,
		Message:    "Doctor assigned and prediction sent for review.",
		Prediction: p,
	})
}

func (h *Handler) UploadPrediction(w http.ResponseWriter, r *http.Request) {
	var req PredictionIDRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.predictions.Upload(r.Context(), uuid.MustParse(req.PredictionID))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PredictionResponse{
		Success:    true,
		Message:    "Uploaded to ledger",
		TxHash:     p.TxHash,
		Prediction: p,
	})
}

func (h *Handler) DeletePrediction(w http.ResponseWriter, r *http.Request) {
	predictionID, ok := predictionParam(w, r)
	if !ok {
		return
	}
	if err := h.predictions.Delete(r.Context(), predictionID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Prediction deleted successfully."})
}

func (h *Handler) ForceDeletePrediction(w http.ResponseWriter, r *http.Request) {
	predictionID, ok := predictionParam(w, r)
	if !ok {
		return
	}
	if err := h.predictions.ForceDelete(r.Context(), predictionID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Prediction deleted successfully."})
}

// Doctor

func (h *Handler) DoctorPredictions(w http.ResponseWriter, r *http.Request) {
	predictions, err := h.predictions.ListForDoctor(r.Context(), callerID(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PredictionsResponse{Success: true, Predictions: predictions})
}

func (h *Handler) DoctorReviewPrediction(w http.ResponseWriter, r *http.Request) {
	predictionID, ok := predictionParam(w, r)
	if !ok {
		return
	}
	var req ReviewPredictionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	p, err := h.predictions.Review(r.Context(), predictionID, callerID(r), prediction.Status(req.Status))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PredictionResponse{
		Success:    true,
		Message:    "Prediction " + req.Status,
		Prediction: p,
	})
}
