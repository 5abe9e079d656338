package prediction

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository. Transitions check their
// guard and apply under one mutex, like the conditional UPDATE in PgRepository.
type MemoryRepository struct {
	mu          sync.Mutex
	predictions map[uuid.UUID]*Prediction
	order       []uuid.UUID
	now         func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		predictions: make(map[uuid.UUID]*Prediction),
		now:         time.Now,
	}
}

func copyPrediction(p *Prediction) *Prediction {
	cp := *p
	if p.DoctorID != nil {
		id := *p.DoctorID
		cp.DoctorID = &id
	}
	if p.UserData.ID != nil {
		id := *p.UserData.ID
		cp.UserData.ID = &id
	}
	cp.UserData.Inputs = slices.Clone(p.UserData.Inputs)
	return &cp
}

func (m *MemoryRepository) newestFirst(keep func(*Prediction) bool) []Prediction {
	result := []Prediction{}
	for i := len(m.order) - 1; i >= 0; i-- {
		p, ok := m.predictions[m.order[i]]
		if ok && keep(p) {
			result = append(result, *copyPrediction(p))
		}
	}
	return result
}

func (m *MemoryRepository) InsertPrediction(_ context.Context, p *Prediction) (*Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyPrediction(p)
	now := m.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	m.predictions[stored.ID] = stored
	m.order = append(m.order, stored.ID)
	return copyPrediction(stored), nil
}

func (m *MemoryRepository) GetPrediction(_ context.Context, id uuid.UUID) (*Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.predictions[id]
	if !ok {
		return nil, ErrPredictionNotFound
	}
	return copyPrediction(p), nil
}

func (m *MemoryRepository) ListPredictions(_ context.Context) ([]Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newestFirst(func(*Prediction) bool { return true }), nil
}

func (m *MemoryRepository) ListPredictionsByDoctor(_ context.Context, doctorID uuid.UUID) ([]Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newestFirst(func(p *Prediction) bool {
		return p.DoctorID != nil && *p.DoctorID == doctorID
	}), nil
}

func (m *MemoryRepository) TransitionPrediction(_ context.Context, id uuid.UUID, t Transition) (*Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.predictions[id]
	if !ok {
		return nil, ErrPredictionNotFound
	}
	if !t.allows(p) {
		return nil, ErrInvalidTransition
	}

	p.Status = t.To
	if t.DoctorID != nil {
		docID := *t.DoctorID
		p.DoctorID = &docID
	}
	if t.TxHash != "" {
		p.TxHash = t.TxHash
	}
	p.UpdatedAt = m.now()
	return copyPrediction(p), nil
}

func (m *MemoryRepository) DeletePrediction(_ context.Context, id uuid.UUID, from []Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.predictions[id]
	if !ok {
		return ErrPredictionNotFound
	}
	if from != nil && !slices.Contains(from, p.Status) {
		return ErrInvalidTransition
	}

	delete(m.predictions, id)
	m.order = slices.DeleteFunc(m.order, func(o uuid.UUID) bool { return o == id })
	return nil
}
