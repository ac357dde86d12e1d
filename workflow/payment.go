package workflow

import (
	"fmt"

	"github.com/TFMV/estateflow/domain"
)

// Payment saga steps
const (
	StepValidatingPayment = "VALIDATING_PAYMENT"
	StepReserving         = "RESERVING"
	StepCharging          = "CHARGING"
	StepConfirming        = "CONFIRMING"
	StepFulfilling        = "FULFILLING"
	StepCompensating      = "COMPENSATING"
)

// SagaLedgerEntry summarizes what a payment saga did
type SagaLedgerEntry struct {
	OrderID              string `json:"orderId"`
	Reserved             bool   `json:"reserved"`
	Released             bool   `json:"released"`
	Status               string `json:"status"`
	TransactionID        string `json:"transactionId,omitempty"`
	FulfillmentTriggered bool   `json:"fulfillmentTriggered"`
}

// PaymentSaga validates, reserves, charges and confirms an order. When the charge
// or the confirmation fails after stock was reserved, the reservation is released
// and the original error is returned.
func PaymentSaga(rt Runtime, in PaymentInput) (SagaLedgerEntry, error) {
	logger := rt.Logger()
	logger.Info("Starting payment saga", "order_id", in.OrderID, "method", in.Method, "mode", rt.Mode())

	entry := SagaLedgerEntry{OrderID: in.OrderID, Status: domain.OrderPending}

	rt.SetStep(StepValidatingPayment)
	var order domain.Order
	if err := call(rt, ActValidatePayment, in, &order); err != nil {
		rt.SetStep(StepFailed)
		return entry, err
	}

	rt.SetStep(StepReserving)
	var reserved ReserveResult
	if err := call(rt, ActReserveInventory, ReserveInput{OrderID: in.OrderID, Items: in.Items}, &reserved); err != nil {
		rt.SetStep(StepFailed)
		return entry, err
	}
	entry.Reserved = true

	rt.SetStep(StepCharging)
	var charge ChargeResult
	if err := call(rt, ActCharge, in, &charge); err != nil {
		logger.Warn("Charge failed, compensating", "order_id", in.OrderID, "error", err)
		compensatePayment(rt, &entry, true)
		notifyPayment(rt, in, "Payment failed", fmt.Sprintf("We could not process the payment for order %s.", in.OrderID))
		rt.SetStep(StepFailed)
		return entry, err
	}
	entry.TransactionID = charge.TransactionID

	rt.SetStep(StepConfirming)
	status := OrderStatusInput{OrderID: in.OrderID, Status: domain.OrderPaid, TransactionID: charge.TransactionID}
	if err := call(rt, ActMarkOrderStatus, status, nil); err != nil {
		logger.Error("Failed to confirm order after charge, compensating", "order_id", in.OrderID, "transaction_id", charge.TransactionID, "error", err)
		compensatePayment(rt, &entry, false)
		rt.SetStep(StepFailed)
		return entry, err
	}
	entry.Status = domain.OrderPaid

	rt.SetStep(StepFulfilling)
	if err := call(rt, ActTriggerFulfillment, OrderRef{OrderID: in.OrderID}, nil); err != nil {
		logger.Error("Fulfillment failed, order stays paid", "order_id", in.OrderID, "error", err)
	} else {
		entry.FulfillmentTriggered = true
	}

	rt.SetStep(StepNotifying)
	notifyPayment(rt, in, "Payment received", fmt.Sprintf("Order %s is paid. Transaction %s.", in.OrderID, charge.TransactionID))

	rt.SetStep(StepDone)
	logger.Info("Payment saga completed", "order_id", in.OrderID, "transaction_id", charge.TransactionID)
	return entry, nil
}

// compensatePayment undoes the reservation once. Failures are logged and never
// replace the error that triggered compensation.
func compensatePayment(rt Runtime, entry *SagaLedgerEntry, markFailed bool) {
	logger := rt.Logger()
	rt.SetStep(StepCompensating)

	if entry.Reserved && !entry.Released {
		var res ReleaseResult
		if err := rt.ExecuteActivity(ActReleaseInventory, Extended, OrderRef{OrderID: entry.OrderID}, &res); err != nil {
			logger.Error("Compensation failed: inventory not released", "order_id", entry.OrderID, "error", err)
		} else {
			entry.Released = true
		}
	}

	if markFailed {
		status := OrderStatusInput{OrderID: entry.OrderID, Status: domain.OrderPaymentFailed}
		if err := call(rt, ActMarkOrderStatus, status, nil); err != nil {
			logger.Error("Failed to mark order as payment failed", "order_id", entry.OrderID, "error", err)
		} else {
			entry.Status = domain.OrderPaymentFailed
		}
	}
}

func notifyPayment(rt Runtime, in PaymentInput, subject, body string) {
	if err := call(rt, ActNotifyUser, Notification{UserID: in.UserID, Subject: subject, Body: body}, nil); err != nil {
		rt.Logger().Warn("Failed to notify payer", "user_id", in.UserID, "error", err)
	}
}
