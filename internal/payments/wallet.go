package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// WalletGateway talks to a mobile-wallet aggregator (Easypaisa, Jazzcash)
// over its JSON HTTP API. Both providers expose the same charge/refund/status
// shape, so one client serves either endpoint.
type WalletGateway struct {
	Provider string
	Endpoint string
	Client   *http.Client
}

func NewWalletGateway(provider, endpoint string) *WalletGateway {
	return &WalletGateway{
		Provider: provider,
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type walletChargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

func (w *WalletGateway) Charge(ctx context.Context, amount int64, currency string, metadata map[string]string) (Charge, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"metadata": metadata,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint+"/charges", bytes.NewReader(body))
	if err != nil {
		return Charge{Status: models.PaymentFailed}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return Charge{Status: models.PaymentFailed}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Charge{Status: models.PaymentFailed}, fmt.Errorf("%s charge: status %d", w.Provider, resp.StatusCode)
	}
	var out walletChargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Charge{Status: models.PaymentFailed}, err
	}
	return Charge{TransactionID: out.TransactionID, Status: walletStatus(out.Status)}, nil
}

func (w *WalletGateway) Refund(ctx context.Context, transactionID string, amount int64) error {
	body, _ := json.Marshal(map[string]interface{}{"amount": amount})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/charges/%s/refund", w.Endpoint, transactionID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s refund: status %d", w.Provider, resp.StatusCode)
	}
	return nil
}

func (w *WalletGateway) Verify(ctx context.Context, transactionID string) (models.PaymentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/charges/%s", w.Endpoint, transactionID), nil)
	if err != nil {
		return models.PaymentFailed, err
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return models.PaymentFailed, err
	}
	defer resp.Body.Close()
	var out walletChargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.PaymentFailed, err
	}
	return walletStatus(out.Status), nil
}

func walletStatus(s string) models.PaymentStatus {
	switch s {
	case "completed", "success":
		return models.PaymentCompleted
	case "refunded":
		return models.PaymentRefunded
	case "pending":
		return models.PaymentPending
	default:
		return models.PaymentFailed
	}
}
