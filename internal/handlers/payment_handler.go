package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shopapp/payment-service/internal/models"
	"github.com/shopapp/payment-service/internal/provider"
	"github.com/shopapp/payment-service/internal/service"
	"github.com/shopapp/payment-service/internal/telemetry"
)

type PaymentHandler struct {
	orchestrator *service.Orchestrator
	callbacks    *service.CallbackProcessor
}

func NewPaymentHandler(orchestrator *service.Orchestrator, callbacks *service.CallbackProcessor) *PaymentHandler {
	return &PaymentHandler{
		orchestrator: orchestrator,
		callbacks:    callbacks,
	}
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	resp, err := h.orchestrator.ProcessPayment(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		var perr *provider.Error
		switch {
		case errors.Is(err, models.ErrOrderNotFound):
			status = http.StatusNotFound
		case errors.Is(err, models.ErrPaymentMethodUnsupported),
			errors.Is(err, models.ErrInvalidTransition):
			status = http.StatusBadRequest
		case errors.As(err, &perr):
			status = http.StatusBadGateway
		}
		telemetry.Logger.Error("Payment creation failed",
			zap.Int64("order_id", req.OrderID),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Payment created with method %s", resp.PaymentMethod),
		"payload": resp,
	})
}

// VNPayReturn handles the gateway's browser return redirect.
func (h *PaymentHandler) VNPayReturn(c *gin.Context) {
	params := queryMap(c)

	result, err := h.callbacks.HandleVNPayReturn(c.Request.Context(), params)
	if errors.Is(err, models.ErrSignatureInvalid) {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "invalid signature",
		})
		return
	}
	if err != nil {
		telemetry.Logger.Error("VNPay return processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        result.Outcome == provider.ReturnSuccess,
		"order_id":       result.OrderID,
		"transaction_id": result.TransactionNo,
	})
}

// MoMoReturn handles the wallet provider's browser return redirect.
func (h *PaymentHandler) MoMoReturn(c *gin.Context) {
	params := queryMap(c)

	success, orderID, err := h.callbacks.HandleMoMoReturn(c.Request.Context(), params)
	if errors.Is(err, models.ErrSignatureInvalid) {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "invalid signature",
		})
		return
	}
	if err != nil {
		telemetry.Logger.Error("MoMo return processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        success,
		"order_id":       orderID,
		"transaction_id": params["transId"],
	})
}

// MoMoNotify handles the wallet provider's server-to-server IPN. The
// provider is always acknowledged, otherwise it retries aggressively;
// internal failures are recorded, not surfaced.
func (h *PaymentHandler) MoMoNotify(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		telemetry.Logger.Warn("Malformed MoMo IPN body", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": 0, "message": "success"})
		return
	}

	if err := h.callbacks.HandleMoMoNotify(c.Request.Context(), stringMap(body)); err != nil {
		telemetry.Logger.Error("MoMo IPN processing failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"status": 0, "message": "success"})
}

type zaloPayCallbackBody struct {
	Data string `json:"data"`
	Mac  string `json:"mac"`
}

// ZaloPayCallback handles the wallet provider's signed server callback. The
// acknowledgement body tells the provider whether to redeliver.
func (h *PaymentHandler) ZaloPayCallback(c *gin.Context) {
	var body zaloPayCallbackBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusOK, gin.H{"return_code": 0, "return_message": err.Error()})
		return
	}

	if err := h.callbacks.HandleZaloPayCallback(c.Request.Context(), body.Data, body.Mac); err != nil {
		telemetry.Logger.Error("ZaloPay callback processing failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"return_code": 0, "return_message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"return_code": 1, "return_message": "success"})
}

// ConfirmCOD marks a cash-on-delivery payment successful on delivery.
func (h *PaymentHandler) ConfirmCOD(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid order id"})
		return
	}

	payment, err := h.orchestrator.ConfirmCOD(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "payload": models.NewPaymentResponse(payment, "")})
}

// Refund records an explicit refund of a successful payment.
func (h *PaymentHandler) Refund(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid order id"})
		return
	}

	payment, err := h.orchestrator.Refund(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "payload": models.NewPaymentResponse(payment, "")})
}

func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid order id"})
		return
	}

	payment, err := h.orchestrator.FindByOrderID(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "payload": models.NewPaymentResponse(payment, "")})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrOrderNotFound), errors.Is(err, models.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPaymentMethodUnsupported), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func queryMap(c *gin.Context) map[string]string {
	params := make(map[string]string)
	for name, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	return params
}

// stringMap flattens a decoded JSON object to strings; numeric fields such
// as resultCode and transId arrive as JSON numbers.
func stringMap(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}
