package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/shopapp/payment-service/internal/interfaces"
	"github.com/shopapp/payment-service/internal/models"
)

// COD records cash-on-delivery payments. No external call is made; the
// payment stays pending until the courier confirms delivery.
type COD struct {
	payments interfaces.PaymentRepository
	orders   interfaces.OrderRepository
	now      func() time.Time
}

func NewCOD(payments interfaces.PaymentRepository, orders interfaces.OrderRepository) *COD {
	return &COD{payments: payments, orders: orders, now: time.Now}
}

func (c *COD) Method() models.PaymentMethod {
	return models.MethodCOD
}

func (c *COD) CreatePayment(ctx context.Context, req models.PaymentRequest) (string, error) {
	order, err := c.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return "", err
	}

	transactionNo := fmt.Sprintf("COD_%d_%d", req.OrderID, c.now().UnixMilli())
	payment := &models.Payment{
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		OrderInfo:     req.OrderInfo,
		PaymentMethod: models.MethodCOD,
		TransactionNo: transactionNo,
		Status:        models.StatusPending,
	}
	if err := c.payments.Upsert(ctx, payment); err != nil {
		return "", err
	}

	if err := c.orders.UpdateStatus(ctx, order.ID, models.OrderPending); err != nil {
		return "", err
	}

	return transactionNo, nil
}
