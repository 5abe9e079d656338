package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const predictionColumns = `id, disease, user_data, prediction_result, probability, status, doctor_id, tx_hash,
	created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanPrediction(row pgx.Row) (*Prediction, error) {
	var p Prediction
	var userData []byte
	var status string

	err := row.Scan(
		&p.ID,
		&p.Disease,
		&userData,
		&p.PredictionResult,
		&p.Probability,
		&status,
		&p.DoctorID,
		&p.TxHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPredictionNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(userData, &p.UserData); err != nil {
		return nil, fmt.Errorf("decode user_data of %s: %w", p.ID, err)
	}
	p.Status = Status(status)
	return &p, nil
}

func collectPredictions(rows pgx.Rows) ([]Prediction, error) {
	defer rows.Close()

	result := []Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM predictions WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (r *PgRepository) InsertPrediction(ctx context.Context, p *Prediction) (*Prediction, error) {
	userData, err := json.Marshal(p.UserData)
	if err != nil {
		return nil, fmt.Errorf("encode user_data: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO predictions (id, disease, user_id, user_data, prediction_result, probability, status,
		                         doctor_id, tx_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', now(), now())
		RETURNING `+predictionColumns,
		p.ID, p.Disease, p.UserData.ID, userData, p.PredictionResult, p.Probability, string(p.Status), p.DoctorID)
	return scanPrediction(row)
}

func (r *PgRepository) GetPrediction(ctx context.Context, id uuid.UUID) (*Prediction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id)
	return scanPrediction(row)
}

func (r *PgRepository) ListPredictions(ctx context.Context) ([]Prediction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return collectPredictions(rows)
}

func (r *PgRepository) ListPredictionsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Prediction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+predictionColumns+`
		FROM predictions
		WHERE doctor_id = $1
		ORDER BY created_at DESC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	return collectPredictions(rows)
}

func (r *PgRepository) TransitionPrediction(ctx context.Context, id uuid.UUID, t Transition) (*Prediction, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE predictions
		SET status = $2,
		    doctor_id = COALESCE($3::uuid, doctor_id),
		    tx_hash = CASE WHEN $4::text = '' THEN tx_hash ELSE $4::text END,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY ($5::text[])
		  AND ($6::uuid IS NULL OR doctor_id = $6::uuid)
		RETURNING `+predictionColumns,
		id, string(t.To), t.DoctorID, t.TxHash, statusStrings(t.From), t.AssignedTo)
	p, err := scanPrediction(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPredictionNotFound) {
		return nil, err
	}

	ok, err := r.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPredictionNotFound
	}
	return nil, ErrInvalidTransition
}

func (r *PgRepository) DeletePrediction(ctx context.Context, id uuid.UUID, from []Status) error {
	var (
		cmdErr   error
		affected int64
	)
	if from == nil {
		tag, err := r.pool.Exec(ctx, `DELETE FROM predictions WHERE id = $1`, id)
		cmdErr, affected = err, tag.RowsAffected()
	} else {
		tag, err := r.pool.Exec(ctx, `
			DELETE FROM predictions
			WHERE id = $1
			  AND status = ANY ($2::text[])
		`, id, statusStrings(from))
		cmdErr, affected = err, tag.RowsAffected()
	}
	if cmdErr != nil {
		return fmt.Errorf("delete prediction: %w", cmdErr)
	}
	if affected > 0 {
		return nil
	}

	ok, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPredictionNotFound
	}
	return ErrInvalidTransition
}
