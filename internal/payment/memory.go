package payment

import (
	"context"
	"fmt"
	"sync"
)

// MemoryGateway keeps orders in process. It backs tests and local runs
// without gateway credentials.
type MemoryGateway struct {
	mu     sync.Mutex
	orders map[string]*Order
	seq    int

	// FetchErr, when set, is returned by every FetchOrder call.
	FetchErr error
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{orders: make(map[string]*Order)}
}

func (g *MemoryGateway) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	o := &Order{
		ID:       fmt.Sprintf("order_%06d", g.seq),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
		Notes:    req.Notes,
	}
	g.orders[o.ID] = o
	cp := *o
	return &cp, nil
}

func (g *MemoryGateway) FetchOrder(_ context.Context, orderID string) (*Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	o, ok := g.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	cp := *o
	return &cp, nil
}

// Put stores an order as if the gateway had created it.
func (g *MemoryGateway) Put(o Order) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[o.ID] = &o
}
