package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Doctor carries the booking-relevant part of a doctor record. SlotsBooked
// maps a D_M_YYYY date key to the times already reserved on that date, in
// booking order. It is derived from the booked slot index on every read, so a
// date whose last time was cancelled has no key at all.
type Doctor struct {
	ID          uuid.UUID           `json:"_id"`
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Image       string              `json:"image"`
	Speciality  string              `json:"speciality"`
	Degree      string              `json:"degree"`
	Experience  string              `json:"experience"`
	About       string              `json:"about"`
	Fees        float64             `json:"fees"`
	Available   bool                `json:"available"`
	SlotsBooked map[string][]string `json:"slots_booked"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

type Patient struct {
	ID        uuid.UUID `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Image     string    `json:"image"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DoctorSnapshot is the doctor as seen at booking time. It never includes
// the slot map.
type DoctorSnapshot struct {
	ID         uuid.UUID `json:"_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Image      string    `json:"image"`
	Speciality string    `json:"speciality"`
	Degree     string    `json:"degree"`
	Experience string    `json:"experience"`
	About      string    `json:"about"`
	Fees       float64   `json:"fees"`
}

// PatientSnapshot is the patient as seen at booking time.
type PatientSnapshot struct {
	ID    uuid.UUID `json:"_id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Image string    `json:"image"`
	Phone string    `json:"phone"`
}

func (d *Doctor) Snapshot() DoctorSnapshot {
	return DoctorSnapshot{
		ID:         d.ID,
		Name:       d.Name,
		Email:      d.Email,
		Image:      d.Image,
		Speciality: d.Speciality,
		Degree:     d.Degree,
		Experience: d.Experience,
		About:      d.About,
		Fees:       d.Fees,
	}
}

func (p *Patient) Snapshot() PatientSnapshot {
	return PatientSnapshot{
		ID:    p.ID,
		Name:  p.Name,
		Email: p.Email,
		Image: p.Image,
		Phone: p.Phone,
	}
}

// PaymentInfo is written once the gateway payment is confirmed. Amount is in
// the gateway's minor unit.
type PaymentInfo struct {
	OrderID   string    `json:"orderId"`
	PaymentID string    `json:"paymentId"`
	Signature string    `json:"signature,omitempty"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Via       string    `json:"via,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Appointment struct {
	ID          uuid.UUID       `json:"_id"`
	UserID      uuid.UUID       `json:"userId"`
	DocID       uuid.UUID       `json:"docId"`
	UserData    PatientSnapshot `json:"userData"`
	DocData     DoctorSnapshot  `json:"docData"`
	Amount      float64         `json:"amount"`
	SlotDate    string          `json:"slotDate"`
	SlotTime    string          `json:"slotTime"`
	Date        int64           `json:"date"` // unix millis at booking
	Cancelled   bool            `json:"cancelled"`
	Payment     bool            `json:"payment"`
	PaymentInfo *PaymentInfo    `json:"paymentInfo,omitempty"`
	IsCompleted bool            `json:"isCompleted"`
}

// BookedSlot is one row of the slot index.
type BookedSlot struct {
	DoctorID      uuid.UUID
	SlotDate      string
	SlotTime      string
	AppointmentID uuid.UUID
	BookedAt      time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Stats are the aggregate counters behind the admin dashboard.
type Stats struct {
	Doctors      int
	Patients     int
	Appointments int
	Earnings     float64
}

type Dashboard struct {
	Doctors            int           `json:"doctors"`
	Appointments       int           `json:"appointments"`
	Patients           int           `json:"patients"`
	Earnings           float64       `json:"earnings"`
	LatestAppointments []Appointment `json:"latestAppointments"`
}

type ActorKind string

const (
	ActorPatient ActorKind = "patient"
	ActorDoctor  ActorKind = "doctor"
	ActorAdmin   ActorKind = "admin"
)

// Actor is the already-authenticated caller of a mutating operation.
type Actor struct {
	Kind ActorKind
	ID   uuid.UUID
}
