package prediction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRecord is what gets anchored for an approved prediction.
type LedgerRecord struct {
	PredictionID     uuid.UUID `json:"predictionId"`
	UserID           string    `json:"userId"` // "0" for guests
	Disease          string    `json:"disease"`
	UserInputs       string    `json:"userInputs"`
	PredictionResult string    `json:"predictionResult"`
	Probability      int64     `json:"probability"` // probability * 10000
}

func NewLedgerRecord(p *Prediction) LedgerRecord {
	userID := "0"
	if p.UserData.ID != nil {
		userID = p.UserData.ID.String()
	}
	inputs := string(p.UserData.Inputs)
	if inputs == "" {
		inputs = "null"
	}

	return LedgerRecord{
		PredictionID:     p.ID,
		UserID:           userID,
		Disease:          p.Disease,
		UserInputs:       inputs,
		PredictionResult: p.PredictionResult,
		Probability:      int64(math.Round(p.Probability * 10000)),
	}
}

// Ledger is an append-only store for reviewed predictions. Store returns the
// hash that identifies the entry.
type Ledger interface {
	Store(ctx context.Context, rec LedgerRecord) (string, error)
}

// chainHash links an entry to the one before it, so rewriting any stored
// record changes every later hash.
func chainHash(prev string, rec LedgerRecord) (string, []byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", nil, fmt.Errorf("encode ledger record: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(prev))
	h.Write(data)
	return "0x" + hex.EncodeToString(h.Sum(nil)), data, nil
}

// PgLedger keeps the chain in the prediction_ledger table.
type PgLedger struct {
	pool *pgxpool.Pool
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool}
}

func (l *PgLedger) Store(ctx context.Context, rec LedgerRecord) (string, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Appends are serialized so each entry sees the true previous hash.
	if _, err := tx.Exec(ctx, `LOCK TABLE prediction_ledger IN EXCLUSIVE MODE`); err != nil {
		return "", fmt.Errorf("lock ledger: %w", err)
	}

	var prev string
	err = tx.QueryRow(ctx, `SELECT tx_hash FROM prediction_ledger ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("read ledger head: %w", err)
	}

	hash, data, err := chainHash(prev, rec)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO prediction_ledger (tx_hash, prev_hash, prediction_id, record)
		VALUES ($1, $2, $3, $4)
	`, hash, prev, rec.PredictionID, data)
	if err != nil {
		return "", fmt.Errorf("append ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit ledger tx: %w", err)
	}
	return hash, nil
}

type LedgerEntry struct {
	Hash   string
	Prev   string
	Record LedgerRecord
}

// MemoryLedger is the in-process chain used in tests.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []LedgerEntry
	fail    error
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// FailWith makes every later Store return err. Pass nil to recover.
func (l *MemoryLedger) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = err
}

func (l *MemoryLedger) Store(_ context.Context, rec LedgerRecord) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fail != nil {
		return "", l.fail
	}

	var prev string
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].Hash
	}
	hash, _, err := chainHash(prev, rec)
	if err != nil {
		return "", err
	}
	l.entries = append(l.entries, LedgerEntry{Hash: hash, Prev: prev, Record: rec})
	return hash, nil
}

func (l *MemoryLedger) Entries() []LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LedgerEntry(nil), l.entries...)
}
