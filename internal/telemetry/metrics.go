package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentsCreated counts payment creations by method.
	PaymentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_created_total",
		Help: "Number of payments created, by method.",
	}, []string{"method"})

	// CallbacksProcessed counts inbound provider notifications by provider
	// and outcome (success, failure, signature_invalid).
	CallbacksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Number of inbound provider notifications, by provider and outcome.",
	}, []string{"provider", "outcome"})
)
