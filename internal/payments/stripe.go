package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"

	"github.com/example/ride-dispatch/internal/models"
)

// StripeGateway charges card rides through PaymentIntents. Amounts arrive in
// whole PKR and are converted to the minor unit stripe expects.
type StripeGateway struct{}

// NewStripeGateway initializes the stripe client with the given API key.
func NewStripeGateway(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{}
}

func (s *StripeGateway) Charge(ctx context.Context, amount int64, currency string, metadata map[string]string) (Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount * 100),
		Currency: stripe.String(currency),
		Confirm:  stripe.Bool(true),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return Charge{Status: models.PaymentFailed}, err
	}
	return Charge{TransactionID: pi.ID, Status: statusFromIntent(pi.Status)}, nil
}

func (s *StripeGateway) Refund(ctx context.Context, transactionID string, amount int64) error {
	_, err := refund.New(&stripe.RefundParams{
		PaymentIntent: stripe.String(transactionID),
		Amount:        stripe.Int64(amount * 100),
	})
	return err
}

func (s *StripeGateway) Verify(ctx context.Context, transactionID string) (models.PaymentStatus, error) {
	pi, err := paymentintent.Get(transactionID, nil)
	if err != nil {
		return models.PaymentFailed, err
	}
	return statusFromIntent(pi.Status), nil
}

func statusFromIntent(s stripe.PaymentIntentStatus) models.PaymentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentCompleted
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentFailed
	default:
		return models.PaymentPending
	}
}
