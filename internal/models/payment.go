package models

import (
	"fmt"
	"strings"
	"time"
)

type PaymentMethod string

const (
	MethodCOD     PaymentMethod = "COD"
	MethodVNPay   PaymentMethod = "VNPAY"
	MethodMoMo    PaymentMethod = "MOMO"
	MethodZaloPay PaymentMethod = "ZALOPAY"
)

// ParsePaymentMethod resolves a client-supplied method name, case-insensitive.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToUpper(s)) {
	case MethodCOD:
		return MethodCOD, nil
	case MethodVNPay:
		return MethodVNPay, nil
	case MethodMoMo:
		return MethodMoMo, nil
	case MethodZaloPay:
		return MethodZaloPay, nil
	}
	return "", fmt.Errorf("%w: %s", ErrPaymentMethodUnsupported, s)
}

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSuccess   PaymentStatus = "success"
	StatusFailed    PaymentStatus = "failed"
	StatusRefunded  PaymentStatus = "refunded"
	StatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further automatic transition is allowed.
// Only an explicit refund moves a payment out of success.
func (s PaymentStatus) IsTerminal() bool {
	return s != StatusPending
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderFailed     OrderStatus = "failed"
)

// Payment is the single durable record per order. OrderID and PaymentMethod
// never change after creation; only status, response_code, bank_code and
// transaction_no evolve.
type Payment struct {
	ID            int64
	OrderID       int64
	Amount        int64 // minor currency units
	OrderInfo     string
	PaymentMethod PaymentMethod
	TransactionNo string
	ResponseCode  string
	BankCode      string
	Status        PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Order is owned by the order service; this subsystem only reads it and
// advances its status on verified payment outcomes.
type Order struct {
	ID        int64
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PaymentRequest struct {
	OrderID       int64  `json:"order_id" binding:"required,min=1"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	Amount        int64  `json:"amount" binding:"required,min=1000"`
	OrderInfo     string `json:"order_info" binding:"required,max=500"`
	BankCode      string `json:"bank_code"`
}

type PaymentResponse struct {
	PaymentID     int64         `json:"payment_id"`
	OrderID       int64         `json:"order_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Amount        int64         `json:"amount"`
	Status        PaymentStatus `json:"status"`
	PaymentURL    string        `json:"payment_url,omitempty"`
	TransactionNo string        `json:"transaction_no,omitempty"`
	OrderInfo     string        `json:"order_info"`
	BankCode      string        `json:"bank_code,omitempty"`
	ResponseCode  string        `json:"response_code,omitempty"`
	CreatedAt     string        `json:"created_at"`
	UpdatedAt     string        `json:"updated_at"`
}

func NewPaymentResponse(p *Payment, paymentURL string) *PaymentResponse {
	return &PaymentResponse{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		PaymentMethod: p.PaymentMethod,
		Amount:        p.Amount,
		Status:        p.Status,
		PaymentURL:    paymentURL,
		TransactionNo: p.TransactionNo,
		OrderInfo:     p.OrderInfo,
		BankCode:      p.BankCode,
		ResponseCode:  p.ResponseCode,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     p.UpdatedAt.Format(time.RFC3339),
	}
}
