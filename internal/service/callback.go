package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/shopapp/payment-service/internal/interfaces"
	"github.com/shopapp/payment-service/internal/models"
	"github.com/shopapp/payment-service/internal/provider"
	"github.com/shopapp/payment-service/internal/telemetry"
)

// CallbackProcessor reconciles out-of-band provider notifications into
// durable payment and order state. Every inbound path is verified before any
// state is touched, and transitions on an already-terminal payment are
// no-ops so at-least-once delivery cannot corrupt the record.
type CallbackProcessor struct {
	payments interfaces.PaymentRepository
	orders   interfaces.OrderRepository
	locker   interfaces.Locker
	events   interfaces.EventPublisher
	notifier interfaces.Notifier

	vnpay   *provider.VNPay
	momo    *provider.MoMo
	zalopay *provider.ZaloPay
}

func NewCallbackProcessor(
	payments interfaces.PaymentRepository,
	orders interfaces.OrderRepository,
	locker interfaces.Locker,
	events interfaces.EventPublisher,
	notifier interfaces.Notifier,
	vnpay *provider.VNPay,
	momo *provider.MoMo,
	zalopay *provider.ZaloPay,
) *CallbackProcessor {
	return &CallbackProcessor{
		payments: payments,
		orders:   orders,
		locker:   locker,
		events:   events,
		notifier: notifier,
		vnpay:    vnpay,
		momo:     momo,
		zalopay:  zalopay,
	}
}

// HandleVNPayReturn verifies the gateway return redirect and applies the
// verified outcome. An invalid signature mutates nothing and the payment
// stays pending.
func (c *CallbackProcessor) HandleVNPayReturn(ctx context.Context, params map[string]string) (provider.ReturnResult, error) {
	result := c.vnpay.HandleReturn(params)

	switch result.Outcome {
	case provider.ReturnSuccess:
		err := c.HandlePaymentSuccess(ctx, result.OrderID, result.TransactionNo, models.MethodVNPay, result.ResponseCode, params)
		telemetry.CallbacksProcessed.WithLabelValues("VNPAY", "success").Inc()
		return result, err
	case provider.ReturnFailure:
		err := c.HandlePaymentFailure(ctx, result.OrderID, result.TransactionNo, models.MethodVNPay, result.ResponseCode, params)
		telemetry.CallbacksProcessed.WithLabelValues("VNPAY", "failure").Inc()
		return result, err
	default:
		telemetry.Logger.Warn("VNPay return with invalid signature",
			zap.String("txn_ref", params["vnp_TxnRef"]),
		)
		telemetry.CallbacksProcessed.WithLabelValues("VNPAY", "signature_invalid").Inc()
		return result, models.ErrSignatureInvalid
	}
}

// HandleMoMoReturn applies the browser return redirect. The redirect carries
// the same signed field set as the IPN and is verified identically before any
// state is touched; the authoritative settlement arrives on the IPN path as
// well, both funnel into the same idempotent transition.
func (c *CallbackProcessor) HandleMoMoReturn(ctx context.Context, params map[string]string) (bool, int64, error) {
	if !c.momo.VerifyIPN(params) {
		telemetry.Logger.Warn("MoMo return with invalid signature",
			zap.String("order_id", params["orderId"]),
		)
		telemetry.CallbacksProcessed.WithLabelValues("MOMO", "signature_invalid").Inc()
		return false, 0, models.ErrSignatureInvalid
	}

	orderID, err := strconv.ParseInt(params["orderId"], 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("malformed orderId %q: %w", params["orderId"], err)
	}

	resultCode := params["resultCode"]
	transID := params["transId"]

	if resultCode == "0" {
		err = c.HandlePaymentSuccess(ctx, orderID, transID, models.MethodMoMo, resultCode, params)
		telemetry.CallbacksProcessed.WithLabelValues("MOMO", "success").Inc()
		return err == nil, orderID, err
	}
	err = c.HandlePaymentFailure(ctx, orderID, transID, models.MethodMoMo, resultCode, params)
	telemetry.CallbacksProcessed.WithLabelValues("MOMO", "failure").Inc()
	return false, orderID, err
}

// HandleMoMoNotify applies a server-to-server IPN. The signature is
// re-verified over the provider's documented IPN field sequence before any
// state is touched.
func (c *CallbackProcessor) HandleMoMoNotify(ctx context.Context, params map[string]string) error {
	if !c.momo.VerifyIPN(params) {
		telemetry.Logger.Warn("MoMo IPN with invalid signature",
			zap.String("order_id", params["orderId"]),
		)
		telemetry.CallbacksProcessed.WithLabelValues("MOMO", "signature_invalid").Inc()
		return models.ErrSignatureInvalid
	}

	orderID, err := strconv.ParseInt(params["orderId"], 10, 64)
	if err != nil {
		return fmt.Errorf("malformed orderId %q: %w", params["orderId"], err)
	}

	resultCode := params["resultCode"]
	if resultCode == "0" {
		telemetry.CallbacksProcessed.WithLabelValues("MOMO", "success").Inc()
		return c.HandlePaymentSuccess(ctx, orderID, params["transId"], models.MethodMoMo, resultCode, params)
	}
	telemetry.CallbacksProcessed.WithLabelValues("MOMO", "failure").Inc()
	return c.HandlePaymentFailure(ctx, orderID, params["transId"], models.MethodMoMo, resultCode, params)
}

// HandleZaloPayCallback verifies the MAC over the raw data envelope with the
// callback key, then settles the payment located by its provider
// transaction reference.
func (c *CallbackProcessor) HandleZaloPayCallback(ctx context.Context, data, mac string) error {
	if !c.zalopay.VerifyCallback(data, mac) {
		telemetry.Logger.Warn("ZaloPay callback with invalid MAC")
		telemetry.CallbacksProcessed.WithLabelValues("ZALOPAY", "signature_invalid").Inc()
		return models.ErrSignatureInvalid
	}

	cb, err := c.zalopay.ParseCallback(data)
	if err != nil {
		return err
	}

	payment, err := c.payments.GetByTransactionNo(ctx, cb.AppTransID)
	if err != nil {
		return fmt.Errorf("zalopay callback for unknown transaction %s: %w", cb.AppTransID, err)
	}

	raw := map[string]string{
		"app_trans_id": cb.AppTransID,
		"zp_trans_id":  strconv.FormatInt(cb.ZpTransID, 10),
		"amount":       strconv.FormatInt(cb.Amount, 10),
	}
	telemetry.CallbacksProcessed.WithLabelValues("ZALOPAY", "success").Inc()
	return c.HandlePaymentSuccess(ctx, payment.OrderID, cb.AppTransID, models.MethodZaloPay, "1", raw)
}

// HandlePaymentSuccess applies a verified successful outcome: payment to
// success, order advanced to processing. Re-delivery of the same
// notification observes the terminal status and returns without error.
func (c *CallbackProcessor) HandlePaymentSuccess(ctx context.Context, orderID int64, transactionNo string, method models.PaymentMethod, responseCode string, raw map[string]string) error {
	return c.settle(ctx, orderID, transactionNo, responseCode, raw,
		models.StatusSuccess, models.OrderProcessing)
}

// HandlePaymentFailure mirrors HandlePaymentSuccess for a verified failure.
func (c *CallbackProcessor) HandlePaymentFailure(ctx context.Context, orderID int64, transactionNo string, method models.PaymentMethod, responseCode string, raw map[string]string) error {
	return c.settle(ctx, orderID, transactionNo, responseCode, raw,
		models.StatusFailed, models.OrderFailed)
}

func (c *CallbackProcessor) settle(ctx context.Context, orderID int64, transactionNo, responseCode string, raw map[string]string, paymentStatus models.PaymentStatus, orderStatus models.OrderStatus) error {
	locked, err := c.locker.Acquire(ctx, lockKey(orderID), lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire payment lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("payment for order %d is already being processed", orderID)
	}
	defer c.locker.Release(ctx, lockKey(orderID))

	if _, err := c.orders.GetByID(ctx, orderID); err != nil {
		return err
	}
	payment, err := c.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}

	if payment.Status.IsTerminal() {
		telemetry.Logger.Info("Duplicate notification for settled payment",
			zap.Int64("order_id", orderID),
			zap.String("status", string(payment.Status)),
		)
		return nil
	}

	bankCode := raw["vnp_BankCode"]
	if bankCode == "" {
		bankCode = raw["bankCode"]
	}

	rows, err := c.payments.Transition(ctx, orderID, models.StatusPending, paymentStatus, responseCode, transactionNo, bankCode)
	if err != nil {
		return err
	}
	if rows == 0 {
		// A concurrent delivery completed the transition first.
		return nil
	}

	if err := c.orders.UpdateStatus(ctx, orderID, orderStatus); err != nil {
		return err
	}

	settled, err := c.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	c.publishStateChanged(ctx, settled, models.StatusPending)
	c.notifySettled(ctx, settled)

	telemetry.Logger.Info("Payment settled",
		zap.Int64("order_id", orderID),
		zap.String("status", string(paymentStatus)),
		zap.String("transaction_no", transactionNo),
	)
	return nil
}

func (c *CallbackProcessor) publishStateChanged(ctx context.Context, p *models.Payment, previous models.PaymentStatus) {
	event := models.PaymentStateChanged{
		PaymentID:      p.ID,
		OrderID:        p.OrderID,
		PaymentMethod:  p.PaymentMethod,
		PreviousStatus: previous,
		Status:         p.Status,
		TransactionNo:  p.TransactionNo,
		Timestamp:      time.Now(),
	}
	if err := c.events.PublishStateChanged(ctx, event); err != nil {
		telemetry.Logger.Warn("Failed to publish payment state change",
			zap.Int64("order_id", p.OrderID),
			zap.Error(err),
		)
	}
}

func (c *CallbackProcessor) notifySettled(ctx context.Context, p *models.Payment) {
	event := models.PaymentSettled{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		PaymentMethod: p.PaymentMethod,
		Status:        p.Status,
		Amount:        p.Amount,
		TransactionNo: p.TransactionNo,
		Timestamp:     time.Now(),
	}
	if err := c.notifier.NotifyPaymentSettled(ctx, event); err != nil {
		telemetry.Logger.Warn("Failed to notify payment settlement",
			zap.Int64("order_id", p.OrderID),
			zap.Error(err),
		)
	}
}
