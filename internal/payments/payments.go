// Package payments defines the payment capability the orchestrator charges
// through. The orchestrator never branches on provider internals; it asks
// the registry for the gateway matching the ride's payment method.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ride-dispatch/internal/models"
)

var ErrUnsupportedMethod = errors.New("unsupported payment method")

type Charge struct {
	TransactionID string
	Status        models.PaymentStatus
}

type Gateway interface {
	Charge(ctx context.Context, amount int64, currency string, metadata map[string]string) (Charge, error)
	Refund(ctx context.Context, transactionID string, amount int64) error
	Verify(ctx context.Context, transactionID string) (models.PaymentStatus, error)
}

// Registry maps payment methods to gateways. Missing providers simply leave
// the method unregistered; charging then fails as an external-dependency
// error rather than a panic.
type Registry struct {
	gateways map[models.PaymentMethod]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[models.PaymentMethod]Gateway)}
}

func (r *Registry) Register(method models.PaymentMethod, g Gateway) {
	r.gateways[method] = g
}

func (r *Registry) ForMethod(method models.PaymentMethod) (Gateway, error) {
	g, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	return g, nil
}

// CashGateway settles instantly; the driver collects in person.
type CashGateway struct{}

func (CashGateway) Charge(_ context.Context, _ int64, _ string, _ map[string]string) (Charge, error) {
	return Charge{TransactionID: "", Status: models.PaymentCompleted}, nil
}

func (CashGateway) Refund(_ context.Context, _ string, _ int64) error { return nil }

func (CashGateway) Verify(_ context.Context, _ string) (models.PaymentStatus, error) {
	return models.PaymentCompleted, nil
}
