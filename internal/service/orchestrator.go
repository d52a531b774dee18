package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shopapp/payment-service/internal/interfaces"
	"github.com/shopapp/payment-service/internal/models"
	"github.com/shopapp/payment-service/internal/provider"
	"github.com/shopapp/payment-service/internal/telemetry"
)

const lockTTL = 30 * time.Second

func lockKey(orderID int64) string {
	return fmt.Sprintf("payment_lock:%d", orderID)
}

// Orchestrator accepts payment requests, dispatches to the strategy for the
// requested method and returns the stored payment together with the provider
// payload. Strategy selection is a closed switch over the method enum, so an
// unregistered method cannot surface at runtime.
type Orchestrator struct {
	payments interfaces.PaymentRepository
	orders   interfaces.OrderRepository
	locker   interfaces.Locker
	events   interfaces.EventPublisher
	notifier interfaces.Notifier

	cod     *provider.COD
	vnpay   *provider.VNPay
	momo    *provider.MoMo
	zalopay *provider.ZaloPay
}

func NewOrchestrator(
	payments interfaces.PaymentRepository,
	orders interfaces.OrderRepository,
	locker interfaces.Locker,
	events interfaces.EventPublisher,
	notifier interfaces.Notifier,
	cod *provider.COD,
	vnpay *provider.VNPay,
	momo *provider.MoMo,
	zalopay *provider.ZaloPay,
) *Orchestrator {
	return &Orchestrator{
		payments: payments,
		orders:   orders,
		locker:   locker,
		events:   events,
		notifier: notifier,
		cod:      cod,
		vnpay:    vnpay,
		momo:     momo,
		zalopay:  zalopay,
	}
}

func (o *Orchestrator) strategy(method models.PaymentMethod) provider.Strategy {
	switch method {
	case models.MethodCOD:
		return o.cod
	case models.MethodVNPay:
		return o.vnpay
	case models.MethodMoMo:
		return o.momo
	case models.MethodZaloPay:
		return o.zalopay
	}
	return nil
}

// ProcessPayment creates or refreshes the payment for an order and returns
// the outcome. Online methods yield a redirect URL; cash is recorded
// immediately. A provider failure leaves the payment pending and surfaces
// the provider's own error.
func (o *Orchestrator) ProcessPayment(ctx context.Context, req models.PaymentRequest) (*models.PaymentResponse, error) {
	method, err := models.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	telemetry.Logger.Info("Processing payment",
		zap.Int64("order_id", req.OrderID),
		zap.String("method", string(method)),
	)

	locked, err := o.locker.Acquire(ctx, lockKey(req.OrderID), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire payment lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("payment for order %d is already being processed", req.OrderID)
	}
	defer o.locker.Release(ctx, lockKey(req.OrderID))

	if _, err := o.orders.GetByID(ctx, req.OrderID); err != nil {
		return nil, err
	}

	previous := models.PaymentStatus("")
	existing, err := o.payments.GetByOrderID(ctx, req.OrderID)
	if err != nil && !errors.Is(err, models.ErrPaymentNotFound) {
		return nil, err
	}
	if existing != nil {
		previous = existing.Status
		telemetry.Logger.Info("Repeated payment attempt for order",
			zap.Int64("order_id", req.OrderID),
			zap.String("existing_status", string(existing.Status)),
		)
	}

	strategy := o.strategy(method)

	payload, err := strategy.CreatePayment(ctx, req)
	if err != nil {
		var perr *provider.Error
		if errors.As(err, &perr) {
			// The pending row stays as the audit trail of the attempt.
			telemetry.Logger.Warn("Provider rejected payment creation",
				zap.Int64("order_id", req.OrderID),
				zap.String("provider", string(perr.Provider)),
				zap.String("code", perr.Code),
				zap.String("message", perr.Message),
			)
		}
		return nil, err
	}

	payment, err := o.payments.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	o.publishStateChanged(ctx, payment, previous)
	telemetry.PaymentsCreated.WithLabelValues(string(method)).Inc()

	paymentURL := payload
	if method == models.MethodCOD {
		paymentURL = ""
	}
	return models.NewPaymentResponse(payment, paymentURL), nil
}

// FindByOrderID is a pure read; no locking beyond the single-row read.
func (o *Orchestrator) FindByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	return o.payments.GetByOrderID(ctx, orderID)
}

// ConfirmCOD transitions a cash payment to success on delivery confirmation.
// Confirming an already-successful payment is a no-op.
func (o *Orchestrator) ConfirmCOD(ctx context.Context, orderID int64) (*models.Payment, error) {
	locked, err := o.locker.Acquire(ctx, lockKey(orderID), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire payment lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("payment for order %d is already being processed", orderID)
	}
	defer o.locker.Release(ctx, lockKey(orderID))

	payment, err := o.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment.PaymentMethod != models.MethodCOD {
		return nil, fmt.Errorf("%w: order %d is not cash on delivery", models.ErrPaymentMethodUnsupported, orderID)
	}
	if payment.Status == models.StatusSuccess {
		return payment, nil
	}

	rows, err := o.payments.Transition(ctx, orderID, models.StatusPending, models.StatusSuccess, "", "", "")
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: order %d", models.ErrInvalidTransition, orderID)
	}

	confirmed, err := o.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.publishStateChanged(ctx, confirmed, models.StatusPending)
	o.notifySettled(ctx, confirmed)

	telemetry.Logger.Info("COD payment confirmed", zap.Int64("order_id", orderID))
	return confirmed, nil
}

// Refund records an explicit refund of a successful payment. Refunding an
// already-refunded payment is a no-op.
func (o *Orchestrator) Refund(ctx context.Context, orderID int64) (*models.Payment, error) {
	locked, err := o.locker.Acquire(ctx, lockKey(orderID), lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire payment lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("payment for order %d is already being processed", orderID)
	}
	defer o.locker.Release(ctx, lockKey(orderID))

	payment, err := o.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.StatusRefunded {
		return payment, nil
	}

	rows, err := o.payments.Transition(ctx, orderID, models.StatusSuccess, models.StatusRefunded, "", "", "")
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: order %d is %s, only success can be refunded",
			models.ErrInvalidTransition, orderID, payment.Status)
	}

	refunded, err := o.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	o.publishStateChanged(ctx, refunded, models.StatusSuccess)

	telemetry.Logger.Info("Payment refunded", zap.Int64("order_id", orderID))
	return refunded, nil
}

func (o *Orchestrator) publishStateChanged(ctx context.Context, p *models.Payment, previous models.PaymentStatus) {
	event := models.PaymentStateChanged{
		PaymentID:      p.ID,
		OrderID:        p.OrderID,
		PaymentMethod:  p.PaymentMethod,
		PreviousStatus: previous,
		Status:         p.Status,
		TransactionNo:  p.TransactionNo,
		Timestamp:      time.Now(),
	}
	if err := o.events.PublishStateChanged(ctx, event); err != nil {
		telemetry.Logger.Warn("Failed to publish payment state change",
			zap.Int64("order_id", p.OrderID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) notifySettled(ctx context.Context, p *models.Payment) {
	event := models.PaymentSettled{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		PaymentMethod: p.PaymentMethod,
		Status:        p.Status,
		Amount:        p.Amount,
		TransactionNo: p.TransactionNo,
		Timestamp:     time.Now(),
	}
	if err := o.notifier.NotifyPaymentSettled(ctx, event); err != nil {
		telemetry.Logger.Warn("Failed to notify payment settlement",
			zap.Int64("order_id", p.OrderID),
			zap.Error(err),
		)
	}
}
