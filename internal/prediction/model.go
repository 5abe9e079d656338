package prediction

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the review state of a prediction.
//
//	pending -> reviewing -> approved -> uploaded
//	                     -> rejected
type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewing Status = "reviewing"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusUploaded  Status = "uploaded"
)

// Guest defaults used when a prediction is saved without a known patient.
const (
	guestName  = "Guest User"
	guestEmail = "guest@example.com"
	guestImage = "defaultUserImagePath"
)

// UserData is the submitter as seen at save time plus the form inputs the
// model was run on.
type UserData struct {
	ID     *uuid.UUID      `json:"id,omitempty"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
	Image  string          `json:"image"`
	Inputs json.RawMessage `json:"inputs"`
}

type Prediction struct {
	ID               uuid.UUID  `json:"_id"`
	Disease          string     `json:"disease"`
	UserData         UserData   `json:"userData"`
	PredictionResult string     `json:"predictionResult"`
	Probability      float64    `json:"probability"`
	Status           Status     `json:"status"`
	DoctorID         *uuid.UUID `json:"doctorId,omitempty"`
	TxHash           string     `json:"txHash,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Transition is a guarded status change. It applies only when the current
// status is one of From and, if AssignedTo is set, the prediction is
// assigned to that doctor.
type Transition struct {
	From       []Status
	To         Status
	AssignedTo *uuid.UUID
	DoctorID   *uuid.UUID // new reviewer, kept when nil
	TxHash     string     // ledger hash, kept when empty
}

func (t Transition) allows(p *Prediction) bool {
	if t.AssignedTo != nil && (p.DoctorID == nil || *p.DoctorID != *t.AssignedTo) {
		return false
	}
	for _, s := range t.From {
		if p.Status == s {
			return true
		}
	}
	return false
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
