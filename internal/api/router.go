package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopapp/payment-service/internal/handlers"
	"github.com/shopapp/payment-service/internal/service"
	"github.com/shopapp/payment-service/internal/telemetry"
)

func NewRouter(orchestrator *service.Orchestrator, callbacks *service.CallbackProcessor) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "payment-service"})
	})

	paymentHandler := handlers.NewPaymentHandler(orchestrator, callbacks)

	payments := r.Group("/payments")
	{
		payments.POST("/create", paymentHandler.CreatePayment)
		payments.GET("/vnpay-return", paymentHandler.VNPayReturn)
		payments.GET("/momo-return", paymentHandler.MoMoReturn)
		payments.POST("/momo-notify", paymentHandler.MoMoNotify)
		payments.POST("/zalopay/callback", paymentHandler.ZaloPayCallback)
		payments.POST("/:orderId/cod-confirm", paymentHandler.ConfirmCOD)
		payments.POST("/:orderId/refund", paymentHandler.Refund)
		payments.GET("/:orderId/status", paymentHandler.GetPaymentStatus)
	}

	return r
}
