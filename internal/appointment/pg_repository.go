package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

const doctorColumns = `id, name, email, image, speciality, degree, experience, about, fees, available, created_at, updated_at`

const appointmentColumns = `id, user_id, doc_id, user_data, doc_data, amount, slot_date, slot_time, date,
	cancelled, payment, payment_info, is_completed`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.Image,
		&d.Speciality,
		&d.Degree,
		&d.Experience,
		&d.About,
		&d.Fees,
		&d.Available,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.SlotsBooked = map[string][]string{}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Image,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var userData, docData, paymentInfo []byte

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.DocID,
		&userData,
		&docData,
		&a.Amount,
		&a.SlotDate,
		&a.SlotTime,
		&a.Date,
		&a.Cancelled,
		&a.Payment,
		&paymentInfo,
		&a.IsCompleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(userData, &a.UserData); err != nil {
		return nil, fmt.Errorf("decode user_data of %s: %w", a.ID, err)
	}
	if err := json.Unmarshal(docData, &a.DocData); err != nil {
		return nil, fmt.Errorf("decode doc_data of %s: %w", a.ID, err)
	}
	if len(paymentInfo) > 0 {
		var info PaymentInfo
		if err := json.Unmarshal(paymentInfo, &info); err != nil {
			return nil, fmt.Errorf("decode payment_info of %s: %w", a.ID, err)
		}
		a.PaymentInfo = &info
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// loadSlots fills SlotsBooked for the given doctors from the slot index.
func (r *PgRepository) loadSlots(ctx context.Context, doctors map[uuid.UUID]*Doctor) error {
	rows, err := r.pool.Query(ctx, `
		SELECT doctor_id, slot_date, slot_time
		FROM booked_slots
		ORDER BY booked_at, slot_time
	`)
	if err != nil {
		return fmt.Errorf("load booked slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var docID uuid.UUID
		var slotDate, slotTime string
		if err := rows.Scan(&docID, &slotDate, &slotTime); err != nil {
			return err
		}
		if d, ok := doctors[docID]; ok {
			d.SlotsBooked[slotDate] = append(d.SlotsBooked[slotDate], slotTime)
		}
	}

	return rows.Err()
}

func (r *PgRepository) loadDoctorSlots(ctx context.Context, d *Doctor) error {
	rows, err := r.pool.Query(ctx, `
		SELECT slot_date, slot_time
		FROM booked_slots
		WHERE doctor_id = $1
		ORDER BY booked_at, slot_time
	`, d.ID)
	if err != nil {
		return fmt.Errorf("load booked slots of %s: %w", d.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var slotDate, slotTime string
		if err := rows.Scan(&slotDate, &slotTime); err != nil {
			return err
		}
		d.SlotsBooked[slotDate] = append(d.SlotsBooked[slotDate], slotTime)
	}

	return rows.Err()
}

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
	d, err := scanDoctor(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadDoctorSlots(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PgRepository) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+doctorColumns+` FROM doctors ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ordered []*Doctor
	byID := make(map[uuid.UUID]*Doctor)
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, d)
		byID[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.loadSlots(ctx, byID); err != nil {
		return nil, err
	}

	result := make([]Doctor, 0, len(ordered))
	for _, d := range ordered {
		result = append(result, *d)
	}
	return result, nil
}

func (r *PgRepository) ToggleDoctorAvailability(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE doctors
		SET available = NOT available,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+doctorColumns, id)
	d, err := scanDoctor(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadDoctorSlots(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, image, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) ReserveSlot(ctx context.Context, appt *Appointment) (*Appointment, error) {
	userData, err := json.Marshal(appt.UserData)
	if err != nil {
		return nil, fmt.Errorf("encode user_data: %w", err)
	}
	docData, err := json.Marshal(appt.DocData)
	if err != nil {
		return nil, fmt.Errorf("encode doc_data: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, user_id, doc_id, user_data, doc_data, amount, slot_date, slot_time, date,
		                          cancelled, payment, is_completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, false, false, now(), now())
		RETURNING `+appointmentColumns,
		appt.ID, appt.UserID, appt.DocID, userData, docData, appt.Amount, appt.SlotDate, appt.SlotTime, appt.Date)
	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booked_slots (doctor_id, slot_date, slot_time, appointment_id)
		VALUES ($1, $2, $3, $4)
	`, appt.DocID, appt.SlotDate, appt.SlotTime, appt.ID)
	switch pgErrorCode(err) {
	case "":
		if err != nil {
			return nil, fmt.Errorf("insert booked slot: %w", err)
		}
	case pgUniqueViolation:
		return nil, ErrSlotTaken
	case pgForeignKeyViolation:
		return nil, ErrDoctorNotFound
	default:
		return nil, fmt.Errorf("insert booked slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY date DESC, created_at DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doc_id = $1
		ORDER BY date DESC, created_at DESC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointments(ctx context.Context, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY date DESC, created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET cancelled = true,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM booked_slots WHERE appointment_id = $1`, id); err != nil {
		return nil, fmt.Errorf("release booked slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel tx: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET is_completed = true,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id)
	return scanAppointment(row)
}

func (r *PgRepository) MarkPaid(ctx context.Context, id uuid.UUID, info PaymentInfo) (*Appointment, bool, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, false, fmt.Errorf("encode payment_info: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET payment = true,
		    payment_info = $2,
		    updated_at = now()
		WHERE id = $1
		  AND NOT (payment AND COALESCE(payment_info->>'paymentId', '') = $3)
		RETURNING `+appointmentColumns, id, data, info.PaymentID)
	appt, err := scanAppointment(row)
	if err == nil {
		return appt, true, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, false, err
	}

	// Either the id is unknown or this payment is already recorded.
	existing, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PgRepository) ReleaseCancelledSlots(ctx context.Context) ([]BookedSlot, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM booked_slots b
		USING appointments a
		WHERE b.appointment_id = a.id
		  AND a.cancelled
		RETURNING b.doctor_id, b.slot_date, b.slot_time, b.appointment_id, b.booked_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var released []BookedSlot
	for rows.Next() {
		var s BookedSlot
		if err := rows.Scan(&s.DoctorID, &s.SlotDate, &s.SlotTime, &s.AppointmentID, &s.BookedAt); err != nil {
			return nil, err
		}
		released = append(released, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return released, nil
}

func (r *PgRepository) FindUnindexedAppointments(ctx context.Context) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE NOT a.cancelled
		  AND NOT EXISTS (SELECT 1 FROM booked_slots b WHERE b.appointment_id = a.id)
		ORDER BY a.date
	`)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM doctors),
			(SELECT count(*) FROM patients),
			(SELECT count(*) FROM appointments),
			(SELECT COALESCE(sum(amount), 0) FROM appointments WHERE is_completed OR payment)
	`).Scan(&s.Doctors, &s.Patients, &s.Appointments, &s.Earnings)
	if err != nil {
		return Stats{}, fmt.Errorf("load stats: %w", err)
	}
	return s, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
