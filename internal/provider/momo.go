package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shopapp/payment-service/internal/interfaces"
	"github.com/shopapp/payment-service/internal/models"
	"github.com/shopapp/payment-service/internal/signature"
)

// MoMoConfig holds the wallet provider's credentials and endpoints.
type MoMoConfig struct {
	Endpoint    string
	PartnerCode string
	PartnerName string
	StoreID     string
	AccessKey   string
	SecretKey   string
	ReturnURL   string
	NotifyURL   string
	Timeout     time.Duration
}

// MoMo creates hosted-wallet payments over the provider's REST API and
// verifies its asynchronous IPN signatures.
type MoMo struct {
	cfg          MoMoConfig
	payments     interfaces.PaymentRepository
	orders       interfaces.OrderRepository
	client       *http.Client
	newRequestID func() string
}

func NewMoMo(cfg MoMoConfig, payments interfaces.PaymentRepository, orders interfaces.OrderRepository) *MoMo {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PartnerName == "" {
		cfg.PartnerName = "Test"
	}
	if cfg.StoreID == "" {
		cfg.StoreID = "MomoTestStore"
	}
	return &MoMo{
		cfg:          cfg,
		payments:     payments,
		orders:       orders,
		client:       &http.Client{Timeout: cfg.Timeout},
		newRequestID: uuid.NewString,
	}
}

func (m *MoMo) Method() models.PaymentMethod {
	return models.MethodMoMo
}

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	PartnerName string `json:"partnerName"`
	StoreID     string `json:"storeId"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IpnURL      string `json:"ipnUrl"`
	Lang        string `json:"lang"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Signature   string `json:"signature"`
}

type momoCreateResponse struct {
	ResultCode *int   `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
}

func (m *MoMo) CreatePayment(ctx context.Context, req models.PaymentRequest) (string, error) {
	if _, err := m.orders.GetByID(ctx, req.OrderID); err != nil {
		return "", err
	}

	payment := &models.Payment{
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		OrderInfo:     req.OrderInfo,
		PaymentMethod: models.MethodMoMo,
		Status:        models.StatusPending,
	}
	if err := m.payments.Upsert(ctx, payment); err != nil {
		return "", err
	}

	requestID := m.newRequestID()
	extraData := ""

	// The provider signs a fixed field sequence, not a sorted one. Raw
	// values, empty fields included.
	rawSignature := signature.FixedOrder([]signature.Pair{
		{Name: "accessKey", Value: m.cfg.AccessKey},
		{Name: "amount", Value: strconv.FormatInt(req.Amount, 10)},
		{Name: "extraData", Value: extraData},
		{Name: "ipnUrl", Value: m.cfg.NotifyURL},
		{Name: "orderId", Value: strconv.FormatInt(req.OrderID, 10)},
		{Name: "orderInfo", Value: req.OrderInfo},
		{Name: "partnerCode", Value: m.cfg.PartnerCode},
		{Name: "redirectUrl", Value: m.cfg.ReturnURL},
		{Name: "requestId", Value: requestID},
		{Name: "requestType", Value: "captureWallet"},
	})

	reqBody := momoCreateRequest{
		PartnerCode: m.cfg.PartnerCode,
		PartnerName: m.cfg.PartnerName,
		StoreID:     m.cfg.StoreID,
		RequestID:   requestID,
		Amount:      req.Amount,
		OrderID:     strconv.FormatInt(req.OrderID, 10),
		OrderInfo:   req.OrderInfo,
		RedirectURL: m.cfg.ReturnURL,
		IpnURL:      m.cfg.NotifyURL,
		Lang:        "vi",
		ExtraData:   extraData,
		RequestType: "captureWallet",
		Signature:   signature.SignSHA256(m.cfg.SecretKey, rawSignature),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("momo: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("momo: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return "", &Error{Provider: models.MethodMoMo, Message: err.Error()}
	}
	defer resp.Body.Close()

	var createResp momoCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&createResp); err != nil {
		return "", &Error{Provider: models.MethodMoMo, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}

	if createResp.ResultCode == nil {
		return "", &Error{Provider: models.MethodMoMo, Message: "response missing resultCode"}
	}
	if *createResp.ResultCode != 0 {
		return "", &Error{
			Provider: models.MethodMoMo,
			Code:     strconv.Itoa(*createResp.ResultCode),
			Message:  createResp.Message,
		}
	}
	if createResp.PayURL == "" {
		return "", &Error{Provider: models.MethodMoMo, Message: "response missing payUrl"}
	}

	return createResp.PayURL, nil
}

// VerifyIPN recomputes the signature of a server-to-server notification over
// the provider's documented IPN field sequence. Every inbound path is
// verified; the reference gateway flow trusts the IPN result code alone.
func (m *MoMo) VerifyIPN(params map[string]string) bool {
	raw := signature.FixedOrder([]signature.Pair{
		{Name: "accessKey", Value: m.cfg.AccessKey},
		{Name: "amount", Value: params["amount"]},
		{Name: "extraData", Value: params["extraData"]},
		{Name: "message", Value: params["message"]},
		{Name: "orderId", Value: params["orderId"]},
		{Name: "orderInfo", Value: params["orderInfo"]},
		{Name: "orderType", Value: params["orderType"]},
		{Name: "partnerCode", Value: params["partnerCode"]},
		{Name: "payType", Value: params["payType"]},
		{Name: "requestId", Value: params["requestId"]},
		{Name: "responseTime", Value: params["responseTime"]},
		{Name: "resultCode", Value: params["resultCode"]},
		{Name: "transId", Value: params["transId"]},
	})
	return signature.VerifySHA256(m.cfg.SecretKey, raw, params["signature"])
}
