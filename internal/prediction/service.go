package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/metrics"
)

var (
	ErrMissingData        = errors.New("incomplete or invalid data provided")
	ErrInvalidProbability = errors.New("probability must be between 0 and 1")
	ErrInvalidVerdict     = errors.New("review status must be approved or rejected")
	ErrUnauthorized       = errors.New("prediction is not assigned to this doctor")
	ErrAlreadyUploaded    = errors.New("already uploaded to ledger")
	ErrNotApproved        = errors.New("only approved predictions can be uploaded")
	ErrNotRejected        = errors.New("only rejected predictions can be deleted")
	ErrLedgerDisabled     = errors.New("ledger features are disabled")
)

// SaveInput is a model result posted by the prediction form. A nil UserID
// saves the prediction as a guest.
type SaveInput struct {
	Disease          string
	UserID           *uuid.UUID
	Inputs           json.RawMessage
	PredictionResult string
	Probability      float64
}

type Service struct {
	repo    Repository
	dir     Directory
	ledger  Ledger // nil disables uploads
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewService(repo Repository, dir Directory, ledger Ledger, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		dir:     dir,
		ledger:  ledger,
		log:     log,
		metrics: m,
	}
}

// Save stores a new pending prediction. Submitters that cannot be resolved
// to a patient are recorded with guest details.
func (s *Service) Save(ctx context.Context, in SaveInput) (*Prediction, error) {
	p, err := s.save(ctx, in)
	s.observe("save", err)
	return p, err
}

func (s *Service) save(ctx context.Context, in SaveInput) (*Prediction, error) {
	in.Disease = strings.TrimSpace(in.Disease)
	in.PredictionResult = strings.TrimSpace(in.PredictionResult)
	if in.Disease == "" || in.PredictionResult == "" || len(in.Inputs) == 0 || string(in.Inputs) == "null" {
		return nil, ErrMissingData
	}
	if in.Probability < 0 || in.Probability > 1 {
		return nil, ErrInvalidProbability
	}

	user := UserData{
		Name:   guestName,
		Email:  guestEmail,
		Image:  guestImage,
		Inputs: in.Inputs,
	}
	if in.UserID != nil {
		patient, err := s.dir.GetPatientByID(ctx, *in.UserID)
		switch {
		case err == nil:
			id := patient.ID
			user.ID = &id
			user.Name = orDefault(patient.Name, "Unknown User")
			user.Email = orDefault(patient.Email, "No Email Provided")
			user.Image = orDefault(patient.Image, guestImage)
		case errors.Is(err, appointment.ErrPatientNotFound):
			s.log.Warn("prediction submitter not found, saving as guest", zap.String("user_id", in.UserID.String()))
		default:
			return nil, fmt.Errorf("load patient: %w", err)
		}
	}

	stored, err := s.repo.InsertPrediction(ctx, &Prediction{
		ID:               uuid.New(),
		Disease:          in.Disease,
		UserData:         user,
		PredictionResult: in.PredictionResult,
		Probability:      in.Probability,
		Status:           StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("insert prediction: %w", err)
	}

	s.log.Info("prediction saved",
		zap.String("prediction_id", stored.ID.String()),
		zap.String("disease", stored.Disease),
	)
	return stored, nil
}

func (s *Service) List(ctx context.Context) ([]Prediction, error) {
	predictions, err := s.repo.ListPredictions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return predictions, nil
}

// ListForDoctor returns the predictions assigned to a doctor for review.
func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID) ([]Prediction, error) {
	predictions, err := s.repo.ListPredictionsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list predictions by doctor: %w", err)
	}
	return predictions, nil
}

// SendForReview assigns a reviewer. A prediction already under review can be
// reassigned; a decided one cannot.
func (s *Service) SendForReview(ctx context.Context, predictionID, doctorID uuid.UUID) (*Prediction, error) {
	p, err := s.sendForReview(ctx, predictionID, doctorID)
	s.observe("send_for_review", err)
	return p, err
}

func (s *Service) sendForReview(ctx context.Context, predictionID, doctorID uuid.UUID) (*Prediction, error) {
	if predictionID == uuid.Nil || doctorID == uuid.Nil {
		return nil, ErrMissingData
	}
	if _, err := s.dir.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, appointment.ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	p, err := s.repo.TransitionPrediction(ctx, predictionID, Transition{
		From:     []Status{StatusPending, StatusReviewing},
		To:       StatusReviewing,
		DoctorID: &doctorID,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("prediction sent for review",
		zap.String("prediction_id", predictionID.String()),
		zap.String("doc_id", doctorID.String()),
	)
	return p, nil
}

// Review records the assigned doctor's verdict.
func (s *Service) Review(ctx context.Context, predictionID, doctorID uuid.UUID, verdict Status) (*Prediction, error) {
	p, err := s.review(ctx, predictionID, doctorID, verdict)
	s.observe("review", err)
	return p, err
}

func (s *Service) review(ctx context.Context, predictionID, doctorID uuid.UUID, verdict Status) (*Prediction, error) {
	if predictionID == uuid.Nil || doctorID == uuid.Nil {
		return nil, ErrMissingData
	}
	if verdict != StatusApproved && verdict != StatusRejected {
		return nil, ErrInvalidVerdict
	}

	current, err := s.repo.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	if current.DoctorID == nil || *current.DoctorID != doctorID {
		return nil, ErrUnauthorized
	}

	p, err := s.repo.TransitionPrediction(ctx, predictionID, Transition{
		From:       []Status{StatusReviewing},
		To:         verdict,
		AssignedTo: &doctorID,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("prediction reviewed",
		zap.String("prediction_id", predictionID.String()),
		zap.String("doc_id", doctorID.String()),
		zap.String("status", string(verdict)),
	)
	return p, nil
}

// Upload anchors an approved prediction in the ledger and marks it uploaded.
func (s *Service) Upload(ctx context.Context, predictionID uuid.UUID) (*Prediction, error) {
	p, err := s.upload(ctx, predictionID)
	s.observe("upload", err)
	return p, err
}

func (s *Service) upload(ctx context.Context, predictionID uuid.UUID) (*Prediction, error) {
	if s.ledger == nil {
		return nil, ErrLedgerDisabled
	}
	if predictionID == uuid.Nil {
		return nil, ErrMissingData
	}

	current, err := s.repo.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case StatusUploaded:
		return nil, ErrAlreadyUploaded
	case StatusApproved:
	default:
		return nil, fmt.Errorf("%w: status is %s", ErrNotApproved, current.Status)
	}

	hash, err := s.ledger.Store(ctx, NewLedgerRecord(current))
	if err != nil {
		return nil, fmt.Errorf("store in ledger: %w", err)
	}

	p, err := s.repo.TransitionPrediction(ctx, predictionID, Transition{
		From:   []Status{StatusApproved},
		To:     StatusUploaded,
		TxHash: hash,
	})
	if errors.Is(err, ErrInvalidTransition) {
		// Lost a race with another upload; the ledger keeps both entries.
		s.log.Warn("prediction uploaded concurrently",
			zap.String("prediction_id", predictionID.String()),
			zap.String("tx_hash", hash),
		)
		return nil, ErrAlreadyUploaded
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("prediction uploaded",
		zap.String("prediction_id", predictionID.String()),
		zap.String("tx_hash", hash),
	)
	return p, nil
}

// Delete removes a rejected prediction.
func (s *Service) Delete(ctx context.Context, predictionID uuid.UUID) error {
	err := s.repo.DeletePrediction(ctx, predictionID, []Status{StatusRejected})
	if errors.Is(err, ErrInvalidTransition) {
		err = ErrNotRejected
	}
	s.observe("delete", err)
	if err == nil {
		s.log.Info("prediction deleted", zap.String("prediction_id", predictionID.String()))
	}
	return err
}

// ForceDelete removes a prediction whatever its status. Ledger entries stay.
func (s *Service) ForceDelete(ctx context.Context, predictionID uuid.UUID) error {
	err := s.repo.DeletePrediction(ctx, predictionID, nil)
	s.observe("force_delete", err)
	if err == nil {
		s.log.Warn("prediction force deleted", zap.String("prediction_id", predictionID.String()))
	}
	return err
}

func (s *Service) observe(op string, err error) {
	s.metrics.Predictions.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingData), errors.Is(err, ErrInvalidProbability), errors.Is(err, ErrInvalidVerdict):
		return "invalid"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrPredictionNotFound), errors.Is(err, appointment.ErrDoctorNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrAlreadyUploaded),
		errors.Is(err, ErrNotApproved), errors.Is(err, ErrNotRejected):
		return "conflict"
	case errors.Is(err, ErrLedgerDisabled):
		return "disabled"
	default:
		return "error"
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
