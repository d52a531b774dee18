package models

import "time"

// PaymentStateChanged is published to Kafka on every payment state transition.
type PaymentStateChanged struct {
	PaymentID      int64         `json:"payment_id"`
	OrderID        int64         `json:"order_id"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	PreviousStatus PaymentStatus `json:"previous_status"`
	Status         PaymentStatus `json:"status"`
	TransactionNo  string        `json:"transaction_no,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// PaymentSettled is the fire-and-forget notification sent to the order
// service over NATS once a payment reaches a terminal outcome.
type PaymentSettled struct {
	PaymentID     int64         `json:"payment_id"`
	OrderID       int64         `json:"order_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        PaymentStatus `json:"status"`
	Amount        int64         `json:"amount"`
	TransactionNo string        `json:"transaction_no,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}
