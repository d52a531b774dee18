package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopapp/payment-service/internal/models"
	"github.com/shopapp/payment-service/internal/provider"
	"github.com/shopapp/payment-service/internal/testutil"
)

type fixture struct {
	payments *testutil.MemoryPaymentRepository
	orders   *testutil.MemoryOrderRepository
	locker   *testutil.MemoryLocker
	events   *testutil.MemoryPublisher
	notifier *testutil.MemoryNotifier

	vnpay   *provider.VNPay
	momo    *provider.MoMo
	zalopay *provider.ZaloPay

	orchestrator *Orchestrator
	callbacks    *CallbackProcessor
}

// newFixture wires the orchestrator and callback processor against in-memory
// fakes. The wallet providers point at an unreachable endpoint; tests that
// need their HTTP legs start their own servers.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		payments: testutil.NewMemoryPaymentRepository(),
		orders:   testutil.NewMemoryOrderRepository(),
		locker:   testutil.NewMemoryLocker(),
		events:   testutil.NewMemoryPublisher(),
		notifier: testutil.NewMemoryNotifier(),
	}
	f.orders.Seed(123, models.OrderPending)

	cod := provider.NewCOD(f.payments, f.orders)
	f.vnpay = provider.NewVNPay(provider.VNPayConfig{
		URL:        "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "http://localhost:8082/payments/vnpay-return",
		TmnCode:    "TESTTMN1",
		HashSecret: "VNPAYSECRETKEY",
	}, f.payments, f.orders)
	f.momo = provider.NewMoMo(provider.MoMoConfig{
		Endpoint:    "http://127.0.0.1:1",
		PartnerCode: "MOMOTEST",
		AccessKey:   "access-key",
		SecretKey:   "secret-key",
	}, f.payments, f.orders)
	f.zalopay = provider.NewZaloPay(provider.ZaloPayConfig{
		Endpoint: "http://127.0.0.1:1",
		AppID:    "2553",
		Key1:     "key1-secret",
		Key2:     "key2-secret",
	}, f.payments, f.orders)

	f.orchestrator = NewOrchestrator(f.payments, f.orders, f.locker, f.events, f.notifier, cod, f.vnpay, f.momo, f.zalopay)
	f.callbacks = NewCallbackProcessor(f.payments, f.orders, f.locker, f.events, f.notifier, f.vnpay, f.momo, f.zalopay)
	return f
}

func (f *fixture) seedPayment(t *testing.T, p models.Payment) {
	t.Helper()
	if err := f.payments.Upsert(context.Background(), &p); err != nil {
		t.Fatalf("seed payment: %v", err)
	}
}

func TestProcessPaymentCOD(t *testing.T) {
	f := newFixture(t)

	resp, err := f.orchestrator.ProcessPayment(context.Background(), models.PaymentRequest{
		OrderID:       123,
		Amount:        80000,
		OrderInfo:     "Order #123",
		PaymentMethod: "COD",
	})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	if resp.PaymentURL != "" {
		t.Errorf("cash payment returned a redirect URL: %s", resp.PaymentURL)
	}
	if resp.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", resp.Status)
	}
	if len(f.events.Events) != 1 {
		t.Fatalf("published events = %d, want 1", len(f.events.Events))
	}
	if ev := f.events.Events[0]; ev.Status != models.StatusPending || ev.PreviousStatus != "" {
		t.Errorf("event = %+v", ev)
	}
}

func TestProcessPaymentVNPay(t *testing.T) {
	f := newFixture(t)

	resp, err := f.orchestrator.ProcessPayment(context.Background(), models.PaymentRequest{
		OrderID:       123,
		Amount:        150000,
		OrderInfo:     "Order #123",
		PaymentMethod: "vnpay",
	})
	if err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	if !strings.HasPrefix(resp.PaymentURL, "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?") {
		t.Errorf("payment URL = %s", resp.PaymentURL)
	}
	if !strings.Contains(resp.PaymentURL, "vnp_SecureHash=") {
		t.Error("payment URL missing secure hash")
	}

	payment, err := f.payments.GetByOrderID(context.Background(), 123)
	if err != nil {
		t.Fatalf("payment row missing: %v", err)
	}
	if payment.Status != models.StatusPending {
		t.Errorf("payment status = %s, want pending", payment.Status)
	}
}

func TestProcessPaymentUnsupportedMethod(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.ProcessPayment(context.Background(), models.PaymentRequest{
		OrderID:       123,
		Amount:        150000,
		PaymentMethod: "PAYPAL",
	})
	if !errors.Is(err, models.ErrPaymentMethodUnsupported) {
		t.Fatalf("expected ErrPaymentMethodUnsupported, got %v", err)
	}
}

func TestProcessPaymentOrderNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.orchestrator.ProcessPayment(context.Background(), models.PaymentRequest{
		OrderID:       999,
		Amount:        150000,
		PaymentMethod: "COD",
	})
	if !errors.Is(err, models.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestProcessPaymentLockContention(t *testing.T) {
	f := newFixture(t)

	locked, err := f.locker.Acquire(context.Background(), "payment_lock:123", lockTTL)
	if err != nil || !locked {
		t.Fatalf("pre-acquire lock: locked=%v err=%v", locked, err)
	}

	_, err = f.orchestrator.ProcessPayment(context.Background(), models.PaymentRequest{
		OrderID:       123,
		Amount:        80000,
		PaymentMethod: "COD",
	})
	if err == nil || !strings.Contains(err.Error(), "already being processed") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestProcessPaymentRepeatedAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := models.PaymentRequest{OrderID: 123, Amount: 80000, OrderInfo: "Order #123", PaymentMethod: "COD"}

	if _, err := f.orchestrator.ProcessPayment(ctx, req); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	// An abandoned pending payment may be retried; the row is refreshed, not
	// duplicated.
	if _, err := f.orchestrator.ProcessPayment(ctx, req); err != nil {
		t.Fatalf("second attempt: %v", err)
	}

	if ev := f.events.Events[1]; ev.PreviousStatus != models.StatusPending {
		t.Errorf("second event previous status = %s, want pending", ev.PreviousStatus)
	}
}

func TestConfirmCOD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.orchestrator.ProcessPayment(ctx, models.PaymentRequest{
		OrderID: 123, Amount: 80000, OrderInfo: "Order #123", PaymentMethod: "COD",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	confirmed, err := f.orchestrator.ConfirmCOD(ctx, 123)
	if err != nil {
		t.Fatalf("ConfirmCOD: %v", err)
	}
	if confirmed.Status != models.StatusSuccess {
		t.Errorf("status = %s, want success", confirmed.Status)
	}
	if len(f.notifier.Events) != 1 {
		t.Fatalf("settlement notifications = %d, want 1", len(f.notifier.Events))
	}

	// Confirming again is a no-op.
	again, err := f.orchestrator.ConfirmCOD(ctx, 123)
	if err != nil {
		t.Fatalf("second ConfirmCOD: %v", err)
	}
	if again.Status != models.StatusSuccess {
		t.Errorf("status after repeat = %s", again.Status)
	}
	if len(f.notifier.Events) != 1 {
		t.Errorf("repeat confirmation sent another notification")
	}
}

func TestConfirmCODWrongMethod(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.Payment{
		OrderID: 123, Amount: 150000, PaymentMethod: models.MethodVNPay, Status: models.StatusPending,
	})

	_, err := f.orchestrator.ConfirmCOD(context.Background(), 123)
	if !errors.Is(err, models.ErrPaymentMethodUnsupported) {
		t.Fatalf("expected ErrPaymentMethodUnsupported, got %v", err)
	}
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedPayment(t, models.Payment{
		OrderID: 123, Amount: 150000, PaymentMethod: models.MethodVNPay, Status: models.StatusPending,
	})
	if _, err := f.payments.Transition(ctx, 123, models.StatusPending, models.StatusSuccess, "00", "14422574", "NCB"); err != nil {
		t.Fatalf("mark success: %v", err)
	}

	refunded, err := f.orchestrator.Refund(ctx, 123)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refunded.Status != models.StatusRefunded {
		t.Errorf("status = %s, want refunded", refunded.Status)
	}

	// Refunding again is a no-op.
	again, err := f.orchestrator.Refund(ctx, 123)
	if err != nil {
		t.Fatalf("second Refund: %v", err)
	}
	if again.Status != models.StatusRefunded {
		t.Errorf("status after repeat = %s", again.Status)
	}
}

func TestRefundPendingRejected(t *testing.T) {
	f := newFixture(t)
	f.seedPayment(t, models.Payment{
		OrderID: 123, Amount: 150000, PaymentMethod: models.MethodVNPay, Status: models.StatusPending,
	})

	_, err := f.orchestrator.Refund(context.Background(), 123)
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	payment, _ := f.payments.GetByOrderID(context.Background(), 123)
	if payment.Status != models.StatusPending {
		t.Errorf("payment mutated by rejected refund: %s", payment.Status)
	}
}
