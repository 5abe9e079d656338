package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/payment"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

const (
	testKeySecret     = "key_secret"
	testWebhookSecret = "webhook_secret"
)

type fixture struct {
	svc     *Service
	repo    *MemoryRepository
	gateway *payment.MemoryGateway
	doctor  Doctor
	patient Patient
	other   Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	gw := payment.NewMemoryGateway()

	doctor := Doctor{
		ID:         uuid.New(),
		Name:       "Dr. Asha Rao",
		Email:      "asha@example.com",
		Speciality: "General physician",
		Fees:       500,
		Available:  true,
	}
	patient := Patient{ID: uuid.New(), Name: "Ravi", Email: "ravi@example.com", Image: "ravi.png"}
	other := Patient{ID: uuid.New(), Name: "Meera", Email: "meera@example.com"}

	repo.AddDoctor(doctor)
	repo.AddPatient(patient)
	repo.AddPatient(other)

	cfg := config.Config{
		Currency:              "INR",
		RazorpayKeySecret:     testKeySecret,
		RazorpayWebhookSecret: testWebhookSecret,
	}

	svc := NewService(repo, redisclient.NewLocalSlotLocker(), gw, cfg, zap.NewNop(), metrics.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }

	return &fixture{svc: svc, repo: repo, gateway: gw, doctor: doctor, patient: patient, other: other}
}

func (f *fixture) reserve(t *testing.T, date, slot string) *Appointment {
	t.Helper()
	appt, err := f.svc.Reserve(context.Background(), f.doctor.ID, date, slot, f.patient.ID)
	require.NoError(t, err)
	return appt
}

func (f *fixture) slotsOn(t *testing.T, date string) []string {
	t.Helper()
	doc, err := f.repo.GetDoctorByID(context.Background(), f.doctor.ID)
	require.NoError(t, err)
	return doc.SlotsBooked[date]
}

func (f *fixture) eventTypes() []string {
	var types []string
	for _, ev := range f.repo.Events() {
		types = append(types, ev.EventType)
	}
	return types
}

func TestReserve_CreatesAppointmentAndIndexesSlot(t *testing.T) {
	f := newFixture(t)

	appt := f.reserve(t, "5_6_2025", "10:00 AM")

	assert.Equal(t, 500.0, appt.Amount)
	assert.Equal(t, f.patient.ID, appt.UserID)
	assert.Equal(t, f.doctor.ID, appt.DocID)
	assert.Equal(t, "5_6_2025", appt.SlotDate)
	assert.Equal(t, "10:00 AM", appt.SlotTime)
	assert.False(t, appt.Cancelled)
	assert.False(t, appt.Payment)
	assert.False(t, appt.IsCompleted)
	assert.Nil(t, appt.PaymentInfo)
	assert.Equal(t, f.svc.now().UnixMilli(), appt.Date)

	assert.Equal(t, []string{"10:00 AM"}, f.slotsOn(t, "5_6_2025"))

	all, err := f.repo.ListAppointmentsByDoctor(context.Background(), f.doctor.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.Equal(t, []string{EventAppointmentBooked}, f.eventTypes())
}

func TestReserve_SnapshotsAtBookingTime(t *testing.T) {
	f := newFixture(t)

	appt := f.reserve(t, "5_6_2025", "10:00 AM")

	assert.Equal(t, f.doctor.Name, appt.DocData.Name)
	assert.Equal(t, 500.0, appt.DocData.Fees)
	assert.Equal(t, "Ravi", appt.UserData.Name)
	assert.Equal(t, "ravi.png", appt.UserData.Image)

	// later edits to the doctor must not leak into the stored appointment
	changed := f.doctor
	changed.Fees = 900
	changed.Name = "Dr. A. Rao"
	f.repo.AddDoctor(changed)

	stored, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 500.0, stored.Amount)
	assert.Equal(t, "Dr. Asha Rao", stored.DocData.Name)
}

func TestReserve_SlotTaken(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "5_6_2025", "10:00 AM")

	_, err := f.svc.Reserve(context.Background(), f.doctor.ID, "5_6_2025", "10:00 AM", f.other.ID)
	require.ErrorIs(t, err, ErrSlotTaken)

	assert.Equal(t, []string{"10:00 AM"}, f.slotsOn(t, "5_6_2025"))
	all, err := f.repo.ListAppointments(context.Background(), 100, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReserve_SameTimeOtherDateIsFree(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "5_6_2025", "10:00 AM")
	f.reserve(t, "6_6_2025", "10:00 AM")
	f.reserve(t, "5_6_2025", "10:30 AM")

	assert.Equal(t, []string{"10:00 AM", "10:30 AM"}, f.slotsOn(t, "5_6_2025"))
	assert.Equal(t, []string{"10:00 AM"}, f.slotsOn(t, "6_6_2025"))
}

func TestReserve_DoctorNotAvailable(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ChangeAvailability(context.Background(), f.doctor.ID)
	require.NoError(t, err)

	_, err = f.svc.Reserve(context.Background(), f.doctor.ID, "5_6_2025", "10:00 AM", f.patient.ID)
	require.ErrorIs(t, err, ErrNotAvailable)

	assert.Empty(t, f.slotsOn(t, "5_6_2025"))
	all, err := f.repo.ListAppointments(context.Background(), 100, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.repo.Events())
}

func TestReserve_UnknownDoctorIsNotAvailable(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reserve(context.Background(), uuid.New(), "5_6_2025", "10:00 AM", f.patient.ID)
	require.ErrorIs(t, err, ErrNotAvailable)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestReserve_UnknownPatient(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reserve(context.Background(), f.doctor.ID, "5_6_2025", "10:00 AM", uuid.New())
	require.ErrorIs(t, err, ErrPatientNotFound)
	assert.Empty(t, f.slotsOn(t, "5_6_2025"))
}

func TestReserve_MissingData(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name      string
		doctorID  uuid.UUID
		date      string
		slot      string
		patientID uuid.UUID
	}{
		{"no doctor", uuid.Nil, "5_6_2025", "10:00 AM", f.patient.ID},
		{"no date", f.doctor.ID, "", "10:00 AM", f.patient.ID},
		{"no time", f.doctor.ID, "5_6_2025", "", f.patient.ID},
		{"no patient", f.doctor.ID, "5_6_2025", "10:00 AM", uuid.Nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Reserve(context.Background(), tc.doctorID, tc.date, tc.slot, tc.patientID)
			assert.ErrorIs(t, err, ErrMissingData)
		})
	}
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, redisclient.SlotKey, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestReserve_LockHeldIsRetryableConflict(t *testing.T) {
	f := newFixture(t)
	f.svc.locker = busyLocker{}

	_, err := f.svc.Reserve(context.Background(), f.doctor.ID, "5_6_2025", "10:00 AM", f.patient.ID)
	require.ErrorIs(t, err, ErrSlotBeingBooked)
	assert.Empty(t, f.slotsOn(t, "5_6_2025"))
}

// passLocker lets every caller through so only the slot index arbitrates.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, _ redisclient.SlotKey, fn func(context.Context) error) error {
	return fn(ctx)
}

func TestReserve_ConcurrentRequestsBookOnce(t *testing.T) {
	for name, locker := range map[string]redisclient.Locker{
		"slot lock":  redisclient.NewLocalSlotLocker(),
		"index only": passLocker{},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.svc.locker = locker

			const workers = 32
			patients := make([]uuid.UUID, workers)
			for i := range patients {
				p := Patient{ID: uuid.New(), Name: "p"}
				f.repo.AddPatient(p)
				patients[i] = p.ID
			}

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				unknown   []error
			)
			start := make(chan struct{})

			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(patientID uuid.UUID) {
					defer wg.Done()
					<-start
					_, err := f.svc.Reserve(context.Background(), f.doctor.ID, "5_6_2025", "10:00 AM", patientID)

					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrSlotBeingBooked):
					default:
						unknown = append(unknown, err)
					}
				}(patients[i])
			}

			close(start)
			wg.Wait()

			assert.Empty(t, unknown)
			assert.Equal(t, 1, successes)
			assert.Equal(t, []string{"10:00 AM"}, f.slotsOn(t, "5_6_2025"))

			all, err := f.repo.ListAppointmentsByDoctor(context.Background(), f.doctor.ID)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")

	_, err := f.svc.Complete(context.Background(), appt.ID, uuid.New())
	require.ErrorIs(t, err, ErrUnauthorized)

	done, err := f.svc.Complete(context.Background(), appt.ID, f.doctor.ID)
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)
	assert.Contains(t, f.eventTypes(), EventAppointmentCompleted)
}

func TestComplete_RefusesCancelled(t *testing.T) {
	f := newFixture(t)
	appt := f.reserve(t, "5_6_2025", "10:00 AM")
	_, err := f.svc.Cancel(context.Background(), appt.ID, f.patient.ID)
	require.NoError(t, err)

	_, err = f.svc.Complete(context.Background(), appt.ID, f.doctor.ID)
	require.ErrorIs(t, err, ErrAppointmentCancelled)
}

func TestListAppointments_NewestFirstAndClamped(t *testing.T) {
	f := newFixture(t)

	base := f.svc.now()
	for i, slot := range []string{"10:00 AM", "10:30 AM", "11:00 AM"} {
		at := base.Add(time.Duration(i) * time.Minute)
		f.svc.now = func() time.Time { return at }
		f.reserve(t, "5_6_2025", slot)
	}

	mine, err := f.svc.ListPatientAppointments(context.Background(), f.patient.ID)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, "11:00 AM", mine[0].SlotTime)
	assert.Equal(t, "10:00 AM", mine[2].SlotTime)

	page, err := f.svc.ListAppointments(context.Background(), 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "10:30 AM", page[0].SlotTime)

	all, err := f.svc.ListAppointments(context.Background(), 0, -5)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := f.svc.ListPatientAppointments(context.Background(), f.other.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestChangeAvailability_Toggles(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.ChangeAvailability(context.Background(), f.doctor.ID)
	require.NoError(t, err)
	assert.False(t, doc.Available)

	doc, err = f.svc.ChangeAvailability(context.Background(), f.doctor.ID)
	require.NoError(t, err)
	assert.True(t, doc.Available)

	_, err = f.svc.ChangeAvailability(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)

	paid := f.reserve(t, "5_6_2025", "10:00 AM")
	completed := f.reserve(t, "5_6_2025", "10:30 AM")
	f.reserve(t, "5_6_2025", "11:00 AM")

	_, _, err := f.repo.MarkPaid(context.Background(), paid.ID, PaymentInfo{PaymentID: "pay_1"})
	require.NoError(t, err)
	_, err = f.svc.Complete(context.Background(), completed.ID, f.doctor.ID)
	require.NoError(t, err)

	d, err := f.svc.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, d.Doctors)
	assert.Equal(t, 2, d.Patients)
	assert.Equal(t, 3, d.Appointments)
	assert.Equal(t, 1000.0, d.Earnings)
	assert.Len(t, d.LatestAppointments, 3)
}
