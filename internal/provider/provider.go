package provider

import (
	"context"
	"fmt"

	"github.com/shopapp/payment-service/internal/models"
)

// Strategy is the capability every payment method implements. CreatePayment
// persists a pending payment row before any external call, so a failed
// provider call still leaves an auditable trail, and returns the provider
// payload: a redirect URL for online methods, a confirmation token for cash.
type Strategy interface {
	Method() models.PaymentMethod
	CreatePayment(ctx context.Context, req models.PaymentRequest) (string, error)
}

// Error carries the provider's own error code and message when its create
// endpoint rejects a request. The payment stays pending.
type Error struct {
	Provider models.PaymentMethod
	Code     string
	Message  string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// ReturnOutcome classifies a verified gateway return.
type ReturnOutcome int

const (
	ReturnSignatureInvalid ReturnOutcome = iota
	ReturnFailure
	ReturnSuccess
)

// ReturnResult is the parsed, verified content of a gateway return redirect.
// No state is mutated here; the callback processor owns the transition.
type ReturnResult struct {
	Outcome       ReturnOutcome
	OrderID       int64
	TransactionNo string
	ResponseCode  string
	BankCode      string
}
