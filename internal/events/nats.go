package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/shopapp/payment-service/internal/models"
)

const settledSubject = "order.payment.settled"

// NATSNotifier publishes terminal payment outcomes for the order service.
type NATSNotifier struct {
	nc *nats.Conn
}

func NewNATSNotifier(nc *nats.Conn) *NATSNotifier {
	return &NATSNotifier{nc: nc}
}

func (n *NATSNotifier) NotifyPaymentSettled(_ context.Context, event models.PaymentSettled) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.nc.Publish(settledSubject, data)
}
