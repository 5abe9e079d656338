package prediction

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

var (
	ErrPredictionNotFound = errors.New("prediction not found")
	ErrInvalidTransition  = errors.New("prediction is not in a state that allows this action")
)

type Repository interface {
	InsertPrediction(ctx context.Context, p *Prediction) (*Prediction, error)
	GetPrediction(ctx context.Context, id uuid.UUID) (*Prediction, error)
	ListPredictions(ctx context.Context) ([]Prediction, error)
	ListPredictionsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Prediction, error)

	// TransitionPrediction returns ErrInvalidTransition when the prediction
	// exists but the guard in t does not hold.
	TransitionPrediction(ctx context.Context, id uuid.UUID, t Transition) (*Prediction, error)

	// DeletePrediction removes the prediction if its status is one of from.
	// A nil from deletes regardless of status.
	DeletePrediction(ctx context.Context, id uuid.UUID, from []Status) error
}

// Directory resolves the patients and doctors a prediction refers to.
// appointment.Repository satisfies it.
type Directory interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*appointment.Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*appointment.Doctor, error)
}
