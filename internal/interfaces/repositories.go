package interfaces

import (
	"context"
	"time"

	"github.com/shopapp/payment-service/internal/models"
)

// PaymentRepository defines the contract for payment data access.
type PaymentRepository interface {
	// Upsert creates the payment row for its order, or refreshes it while it
	// is still pending. A payment already in a terminal state is never
	// overwritten; models.ErrInvalidTransition is returned instead.
	Upsert(ctx context.Context, p *models.Payment) error

	GetByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	GetByTransactionNo(ctx context.Context, transactionNo string) (*models.Payment, error)

	// Transition applies a guarded status change: the row is updated only if
	// its current status equals from. Returns the number of rows affected;
	// zero means the payment was not in the expected state.
	Transition(ctx context.Context, orderID int64, from, to models.PaymentStatus, responseCode, transactionNo, bankCode string) (int64, error)
}

// OrderRepository is the thin adapter over the order service's data this
// subsystem is allowed to touch.
type OrderRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, id int64, status models.OrderStatus) error
}

// Locker serializes mutations to a single order's payment so two concurrent
// callback deliveries cannot both observe pending.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// EventPublisher emits payment state-change events to the event bus.
type EventPublisher interface {
	PublishStateChanged(ctx context.Context, event models.PaymentStateChanged) error
}

// Notifier signals the order service that a payment reached a terminal
// outcome. Delivery is best-effort.
type Notifier interface {
	NotifyPaymentSettled(ctx context.Context, event models.PaymentSettled) error
}
