package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopapp/payment-service/internal/api"
	"github.com/shopapp/payment-service/internal/models"
	"github.com/shopapp/payment-service/internal/provider"
	"github.com/shopapp/payment-service/internal/service"
	"github.com/shopapp/payment-service/internal/signature"
	"github.com/shopapp/payment-service/internal/testutil"
)

const vnpaySecret = "VNPAYSECRETKEY"

func newTestRouter(t *testing.T) (*gin.Engine, *testutil.MemoryPaymentRepository, *testutil.MemoryOrderRepository) {
	t.Helper()

	payments := testutil.NewMemoryPaymentRepository()
	orders := testutil.NewMemoryOrderRepository()
	orders.Seed(123, models.OrderPending)

	locker := testutil.NewMemoryLocker()
	events := testutil.NewMemoryPublisher()
	notifier := testutil.NewMemoryNotifier()

	cod := provider.NewCOD(payments, orders)
	vnpay := provider.NewVNPay(provider.VNPayConfig{
		URL:        "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "http://localhost:8082/payments/vnpay-return",
		TmnCode:    "TESTTMN1",
		HashSecret: vnpaySecret,
	}, payments, orders)
	momo := provider.NewMoMo(provider.MoMoConfig{
		Endpoint:    "http://127.0.0.1:1",
		PartnerCode: "MOMOTEST",
		AccessKey:   "access-key",
		SecretKey:   "secret-key",
	}, payments, orders)
	zalopay := provider.NewZaloPay(provider.ZaloPayConfig{
		Endpoint: "http://127.0.0.1:1",
		AppID:    "2553",
		Key1:     "key1-secret",
		Key2:     "key2-secret",
	}, payments, orders)

	orchestrator := service.NewOrchestrator(payments, orders, locker, events, notifier, cod, vnpay, momo, zalopay)
	callbacks := service.NewCallbackProcessor(payments, orders, locker, events, notifier, vnpay, momo, zalopay)
	return api.NewRouter(orchestrator, callbacks), payments, orders
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreatePaymentCOD(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/payments/create", models.PaymentRequest{
		OrderID:       123,
		Amount:        80000,
		OrderInfo:     "Order #123",
		PaymentMethod: "COD",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool                   `json:"success"`
		Payload models.PaymentResponse `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, models.StatusPending, body.Payload.Status)
	assert.Empty(t, body.Payload.PaymentURL)
}

func TestCreatePaymentValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	tests := []struct {
		name string
		req  models.PaymentRequest
	}{
		{"amount below minimum", models.PaymentRequest{OrderID: 123, Amount: 500, OrderInfo: "x", PaymentMethod: "COD"}},
		{"missing method", models.PaymentRequest{OrderID: 123, Amount: 80000, OrderInfo: "x"}},
		{"missing order id", models.PaymentRequest{Amount: 80000, OrderInfo: "x", PaymentMethod: "COD"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/payments/create", tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestCreatePaymentOrderNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/payments/create", models.PaymentRequest{
		OrderID:       999,
		Amount:        80000,
		OrderInfo:     "Order #999",
		PaymentMethod: "COD",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePaymentUnsupportedMethod(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/payments/create", models.PaymentRequest{
		OrderID:       123,
		Amount:        80000,
		OrderInfo:     "Order #123",
		PaymentMethod: "PAYPAL",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePaymentProviderDown(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/payments/create", models.PaymentRequest{
		OrderID:       123,
		Amount:        80000,
		OrderInfo:     "Order #123",
		PaymentMethod: "MOMO",
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestVNPayReturnEndpoint(t *testing.T) {
	router, payments, orders := newTestRouter(t)
	seedPending(t, payments, models.MethodVNPay, "")

	params := map[string]string{
		"vnp_TmnCode":       "TESTTMN1",
		"vnp_Amount":        "15000000",
		"vnp_TxnRef":        "123",
		"vnp_OrderInfo":     "Order #123",
		"vnp_ResponseCode":  "00",
		"vnp_TransactionNo": "14422574",
		"vnp_BankCode":      "NCB",
	}
	pairs := make([]signature.Pair, 0, len(params))
	for name, value := range params {
		pairs = append(pairs, signature.Pair{Name: name, Value: value})
	}
	hash := signature.SignSHA512(vnpaySecret, signature.SortedQuery(pairs, signature.EncodeUTF8))

	query := signature.SortedQuery(pairs, signature.EncodeUTF8) + "&vnp_SecureHash=" + hash
	w := doJSON(router, http.MethodGet, "/payments/vnpay-return?"+query, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])

	order, err := orders.GetByID(context.Background(), 123)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, order.Status)
}

func TestVNPayReturnInvalidSignatureEndpoint(t *testing.T) {
	router, payments, _ := newTestRouter(t)
	seedPending(t, payments, models.MethodVNPay, "")

	w := doJSON(router, http.MethodGet,
		"/payments/vnpay-return?vnp_TxnRef=123&vnp_ResponseCode=00&vnp_SecureHash=deadbeef", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "invalid signature", body["message"])
}

func TestMoMoNotifyEndpointAlwaysAcknowledges(t *testing.T) {
	router, payments, _ := newTestRouter(t)
	seedPending(t, payments, models.MethodMoMo, "")

	// Forged signature: acknowledged so the provider stops retrying, but
	// nothing changes.
	w := doJSON(router, http.MethodPost, "/payments/momo-notify", map[string]any{
		"orderId":    "123",
		"resultCode": 0,
		"signature":  "forged",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["status"])

	payment, err := payments.GetByOrderID(context.Background(), 123)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, payment.Status)
}

func TestZaloPayCallbackEndpoint(t *testing.T) {
	router, payments, _ := newTestRouter(t)
	seedPending(t, payments, models.MethodZaloPay, "240510_1715362200000")

	data, err := json.Marshal(provider.CallbackData{
		AppID:      2553,
		AppTransID: "240510_1715362200000",
		Amount:     200000,
		ZpTransID:  240510000000123,
	})
	require.NoError(t, err)
	mac := signature.SignSHA256("key2-secret", string(data))

	w := doJSON(router, http.MethodPost, "/payments/zalopay/callback", map[string]string{
		"data": string(data),
		"mac":  mac,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["return_code"])

	// A forged MAC is acknowledged with return_code 0 and changes nothing.
	w = doJSON(router, http.MethodPost, "/payments/zalopay/callback", map[string]string{
		"data": string(data),
		"mac":  "forged",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["return_code"])
}

func TestCODConfirmAndStatusEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/payments/create", models.PaymentRequest{
		OrderID:       123,
		Amount:        80000,
		OrderInfo:     "Order #123",
		PaymentMethod: "COD",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/payments/123/cod-confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/payments/123/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Payload models.PaymentResponse `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.StatusSuccess, body.Payload.Status)

	w = doJSON(router, http.MethodGet, "/payments/999/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRefundEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/payments/create", models.PaymentRequest{
		OrderID:       123,
		Amount:        80000,
		OrderInfo:     "Order #123",
		PaymentMethod: "COD",
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Refunding a pending payment is rejected.
	w = doJSON(router, http.MethodPost, "/payments/123/refund", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/payments/123/cod-confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/payments/123/refund", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Payload models.PaymentResponse `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.StatusRefunded, body.Payload.Status)
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func seedPending(t *testing.T, payments *testutil.MemoryPaymentRepository, method models.PaymentMethod, transactionNo string) {
	t.Helper()
	err := payments.Upsert(context.Background(), &models.Payment{
		OrderID:       123,
		Amount:        200000,
		OrderInfo:     "Order #123",
		PaymentMethod: method,
		TransactionNo: transactionNo,
		Status:        models.StatusPending,
	})
	require.NoError(t, err)
}
