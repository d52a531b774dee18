// Package testutil provides in-memory implementations of the persistence
// and messaging contracts for tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/shopapp/payment-service/internal/models"
)

type MemoryPaymentRepository struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.Payment // keyed by order id
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{byID: make(map[int64]*models.Payment)}
}

func (r *MemoryPaymentRepository) Upsert(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	existing, ok := r.byID[p.OrderID]
	if !ok {
		r.nextID++
		p.ID = r.nextID
		p.CreatedAt = now
		p.UpdatedAt = now
		stored := *p
		r.byID[p.OrderID] = &stored
		return nil
	}
	if existing.Status.IsTerminal() {
		return models.ErrInvalidTransition
	}

	existing.Amount = p.Amount
	existing.OrderInfo = p.OrderInfo
	existing.PaymentMethod = p.PaymentMethod
	existing.TransactionNo = p.TransactionNo
	existing.Status = p.Status
	existing.UpdatedAt = now

	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *MemoryPaymentRepository) GetByOrderID(_ context.Context, orderID int64) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[orderID]
	if !ok {
		return nil, models.ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *MemoryPaymentRepository) GetByTransactionNo(_ context.Context, transactionNo string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.byID {
		if p.TransactionNo == transactionNo {
			copied := *p
			return &copied, nil
		}
	}
	return nil, models.ErrPaymentNotFound
}

func (r *MemoryPaymentRepository) Transition(_ context.Context, orderID int64, from, to models.PaymentStatus, responseCode, transactionNo, bankCode string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[orderID]
	if !ok || p.Status != from {
		return 0, nil
	}

	p.Status = to
	if responseCode != "" {
		p.ResponseCode = responseCode
	}
	if transactionNo != "" {
		p.TransactionNo = transactionNo
	}
	if bankCode != "" {
		p.BankCode = bankCode
	}
	p.UpdatedAt = time.Now()
	return 1, nil
}

type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[int64]*models.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[int64]*models.Order)}
}

func (r *MemoryOrderRepository) Seed(id int64, status models.OrderStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.orders[id] = &models.Order{ID: id, Status: status, CreatedAt: now, UpdatedAt: now}
}

func (r *MemoryOrderRepository) GetByID(_ context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *MemoryOrderRepository) UpdateStatus(_ context.Context, id int64, status models.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return models.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return nil
}

// MemoryLocker mirrors the SETNX lease semantics of the redis locker.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]bool)}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[key] {
		return false, nil
	}
	l.locks[key] = true
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
	return nil
}

// MemoryPublisher records state-change events.
type MemoryPublisher struct {
	mu     sync.Mutex
	Events []models.PaymentStateChanged
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) PublishStateChanged(_ context.Context, event models.PaymentStateChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, event)
	return nil
}

// MemoryNotifier records settlement notifications.
type MemoryNotifier struct {
	mu     sync.Mutex
	Events []models.PaymentSettled
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) NotifyPaymentSettled(_ context.Context, event models.PaymentSettled) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, event)
	return nil
}
