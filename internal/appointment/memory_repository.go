package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository with the same atomicity as
// PgRepository: every method runs under one mutex, and the slot index
// rejects duplicates like the booked_slots primary key.
type MemoryRepository struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]*Doctor
	patients     map[uuid.UUID]*Patient
	appointments map[uuid.UUID]*Appointment
	order        []uuid.UUID // appointment insertion order
	slots        []BookedSlot
	events       []EventLog
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:      make(map[uuid.UUID]*Doctor),
		patients:     make(map[uuid.UUID]*Patient),
		appointments: make(map[uuid.UUID]*Appointment),
		now:          time.Now,
	}
}

// AddDoctor stores a doctor. SlotsBooked on the argument is ignored.
func (m *MemoryRepository) AddDoctor(d Doctor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.SlotsBooked = nil
	m.doctors[d.ID] = &d
}

func (m *MemoryRepository) AddPatient(p Patient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = &p
}

// Events returns a copy of the recorded event log.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EventLog(nil), m.events...)
}

func (m *MemoryRepository) doctorView(d *Doctor) *Doctor {
	cp := *d
	cp.SlotsBooked = map[string][]string{}
	for _, s := range m.slots {
		if s.DoctorID == d.ID {
			cp.SlotsBooked[s.SlotDate] = append(cp.SlotsBooked[s.SlotDate], s.SlotTime)
		}
	}
	return &cp
}

func copyAppointment(a *Appointment) *Appointment {
	cp := *a
	if a.PaymentInfo != nil {
		info := *a.PaymentInfo
		cp.PaymentInfo = &info
	}
	return &cp
}

// newestFirst orders like the Postgres queries: date DESC, then insertion DESC.
func (m *MemoryRepository) newestFirst(keep func(*Appointment) bool) []Appointment {
	result := []Appointment{}
	for i := len(m.order) - 1; i >= 0; i-- {
		a := m.appointments[m.order[i]]
		if keep(a) {
			result = append(result, *copyAppointment(a))
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Date > result[j].Date })
	return result
}

func (m *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return m.doctorView(d), nil
}

func (m *MemoryRepository) ListDoctors(_ context.Context) ([]Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Doctor, 0, len(m.doctors))
	for _, d := range m.doctors {
		result = append(result, *m.doctorView(d))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryRepository) ToggleDoctorAvailability(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	d.Available = !d.Available
	d.UpdatedAt = m.now()
	return m.doctorView(d), nil
}

func (m *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepository) ReserveSlot(_ context.Context, appt *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.doctors[appt.DocID]; !ok {
		return nil, ErrDoctorNotFound
	}
	for _, s := range m.slots {
		if s.DoctorID == appt.DocID && s.SlotDate == appt.SlotDate && s.SlotTime == appt.SlotTime {
			return nil, ErrSlotTaken
		}
	}

	stored := copyAppointment(appt)
	stored.Cancelled = false
	stored.Payment = false
	stored.PaymentInfo = nil
	stored.IsCompleted = false

	m.appointments[stored.ID] = stored
	m.order = append(m.order, stored.ID)
	m.slots = append(m.slots, BookedSlot{
		DoctorID:      appt.DocID,
		SlotDate:      appt.SlotDate,
		SlotTime:      appt.SlotTime,
		AppointmentID: appt.ID,
		BookedAt:      m.now(),
	})

	return copyAppointment(stored), nil
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return copyAppointment(a), nil
}

func (m *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newestFirst(func(a *Appointment) bool { return a.UserID == patientID }), nil
}

func (m *MemoryRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newestFirst(func(a *Appointment) bool { return a.DocID == doctorID }), nil
}

func (m *MemoryRepository) ListAppointments(_ context.Context, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.newestFirst(func(*Appointment) bool { return true })
	if offset >= len(all) {
		return []Appointment{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *MemoryRepository) CancelAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Cancelled = true
	m.dropSlotOf(id)
	return copyAppointment(a), nil
}

func (m *MemoryRepository) dropSlotOf(appointmentID uuid.UUID) {
	kept := m.slots[:0]
	for _, s := range m.slots {
		if s.AppointmentID != appointmentID {
			kept = append(kept, s)
		}
	}
	m.slots = kept
}

func (m *MemoryRepository) CompleteAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.IsCompleted = true
	return copyAppointment(a), nil
}

func (m *MemoryRepository) MarkPaid(_ context.Context, id uuid.UUID, info PaymentInfo) (*Appointment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, false, ErrAppointmentNotFound
	}
	if a.Payment && a.PaymentInfo != nil && a.PaymentInfo.PaymentID == info.PaymentID {
		return copyAppointment(a), false, nil
	}
	a.Payment = true
	a.PaymentInfo = &info
	return copyAppointment(a), true, nil
}

func (m *MemoryRepository) ReleaseCancelledSlots(_ context.Context) ([]BookedSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var released []BookedSlot
	kept := m.slots[:0]
	for _, s := range m.slots {
		if a, ok := m.appointments[s.AppointmentID]; ok && a.Cancelled {
			released = append(released, s)
			continue
		}
		kept = append(kept, s)
	}
	m.slots = kept
	return released, nil
}

func (m *MemoryRepository) FindUnindexedAppointments(_ context.Context) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	indexed := make(map[uuid.UUID]bool, len(m.slots))
	for _, s := range m.slots {
		indexed[s.AppointmentID] = true
	}

	var result []Appointment
	for _, id := range m.order {
		a := m.appointments[id]
		if !a.Cancelled && !indexed[id] {
			result = append(result, *copyAppointment(a))
		}
	}
	return result, nil
}

func (m *MemoryRepository) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Doctors:      len(m.doctors),
		Patients:     len(m.patients),
		Appointments: len(m.appointments),
	}
	for _, a := range m.appointments {
		if a.IsCompleted || a.Payment {
			s.Earnings += a.Amount
		}
	}
	return s, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}
