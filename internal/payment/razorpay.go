package payment

import (
	"context"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
)

type razorpayGateway struct {
	client *razorpay.Client
}

// NewRazorpayGateway wraps the Razorpay orders API.
func NewRazorpayGateway(keyID, keySecret string) Gateway {
	return &razorpayGateway{client: razorpay.NewClient(keyID, keySecret)}
}

// The SDK is synchronous and takes no context; ctx is only checked up front.
func (g *razorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}

	body, err := g.client.Order.Create(map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	return orderFromBody(body), nil
}

func (g *razorpayGateway) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := g.client.Order.Fetch(orderID, nil, nil)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "does not exist") {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return nil, fmt.Errorf("razorpay fetch order %s: %w", orderID, err)
	}
	return orderFromBody(body), nil
}

// orderFromBody reads the decoded JSON map returned by the SDK.
func orderFromBody(body map[string]interface{}) *Order {
	o := &Order{
		ID:       stringField(body, "id"),
		Currency: stringField(body, "currency"),
		Receipt:  stringField(body, "receipt"),
		Status:   stringField(body, "status"),
	}

	switch v := body["amount"].(type) {
	case float64:
		o.Amount = int64(v)
	case int64:
		o.Amount = v
	case int:
		o.Amount = int64(v)
	}

	if raw, ok := body["notes"].(map[string]interface{}); ok {
		o.Notes = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				o.Notes[k] = s
			}
		}
	}
	return o
}

func stringField(body map[string]interface{}, key string) string {
	s, _ := body[key].(string)
	return s
}
