package workflow

import (
	"context"

	"github.com/TFMV/estateflow/domain"
)

// Notifier delivers user-facing messages
type Notifier interface {
	// NotifyUser sends a message to one user
	NotifyUser(ctx context.Context, userID, subject, body string) error
}

// ChargeRequest asks the payment gateway to capture funds
type ChargeRequest struct {
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"` // minor units
	Currency   string `json:"currency"`
	Method     string `json:"method"`
	CardNumber string `json:"cardNumber,omitempty"`
}

// ChargeResult is the gateway outcome. A decline is Success=false with a reason,
// not an error.
type ChargeResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// PaymentGateway captures card and UPI payments
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// SearchIndex makes approved listings discoverable
type SearchIndex interface {
	Publish(ctx context.Context, entityKey string, data map[string]interface{}) error
	Remove(ctx context.Context, entityKey string) error
}

// Fulfillment activates purchased add-ons once an order is paid
type Fulfillment interface {
	Trigger(ctx context.Context, orderID string) error
}

// QualityScorer rates a listing between 0 and 1 for automatic review decisions
type QualityScorer interface {
	Score(ctx context.Context, entity *domain.Entity) (float64, string, error)
}
