package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopapp/payment-service/internal/interfaces"
	"github.com/shopapp/payment-service/internal/models"
	"github.com/shopapp/payment-service/internal/signature"
)

// ZaloPayConfig holds the wallet provider's app credentials. Key1 signs
// outbound create requests, Key2 verifies inbound callbacks; they are
// distinct keys and must never be swapped.
type ZaloPayConfig struct {
	Endpoint    string
	AppID       string
	Key1        string
	Key2        string
	RedirectURL string
	CallbackURL string
	Timeout     time.Duration
}

// ZaloPay creates hosted-wallet payments and verifies the provider's signed
// server callbacks.
type ZaloPay struct {
	cfg      ZaloPayConfig
	payments interfaces.PaymentRepository
	orders   interfaces.OrderRepository
	client   *http.Client
	now      func() time.Time
}

func NewZaloPay(cfg ZaloPayConfig, payments interfaces.PaymentRepository, orders interfaces.OrderRepository) *ZaloPay {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ZaloPay{
		cfg:      cfg,
		payments: payments,
		orders:   orders,
		client:   &http.Client{Timeout: cfg.Timeout},
		now:      time.Now,
	}
}

func (z *ZaloPay) Method() models.PaymentMethod {
	return models.MethodZaloPay
}

type zaloPayItem struct {
	ItemID       int64  `json:"itemid"`
	ItemName     string `json:"itemname"`
	ItemPrice    int64  `json:"itemprice"`
	ItemQuantity int    `json:"itemquantity"`
}

type zaloPayCreateRequest struct {
	AppID       int    `json:"app_id"`
	AppTransID  string `json:"app_trans_id"`
	AppUser     string `json:"app_user"`
	AppTime     int64  `json:"app_time"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	BankCode    string `json:"bank_code"`
	Item        string `json:"item"`
	EmbedData   string `json:"embed_data"`
	CallbackURL string `json:"callback_url"`
	Mac         string `json:"mac"`
}

type zaloPayCreateResponse struct {
	ReturnCode       int    `json:"return_code"`
	ReturnMessage    string `json:"return_message"`
	SubReturnCode    int    `json:"sub_return_code"`
	SubReturnMessage string `json:"sub_return_message"`
	OrderURL         string `json:"order_url"`
}

func (z *ZaloPay) CreatePayment(ctx context.Context, req models.PaymentRequest) (string, error) {
	if _, err := z.orders.GetByID(ctx, req.OrderID); err != nil {
		return "", err
	}

	now := z.now()
	appTransID := fmt.Sprintf("%s_%d", now.Format("060102"), now.UnixMilli())
	appUser := fmt.Sprintf("user_%d", req.OrderID)
	appTime := now.UnixMilli()

	payment := &models.Payment{
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		OrderInfo:     req.OrderInfo,
		PaymentMethod: models.MethodZaloPay,
		TransactionNo: appTransID,
		Status:        models.StatusPending,
	}
	if err := z.payments.Upsert(ctx, payment); err != nil {
		return "", err
	}

	embedData, err := json.Marshal(map[string]string{"redirecturl": z.cfg.RedirectURL})
	if err != nil {
		return "", fmt.Errorf("zalopay: failed to marshal embed data: %w", err)
	}
	items, err := json.Marshal([]zaloPayItem{{
		ItemID:       req.OrderID,
		ItemName:     req.OrderInfo,
		ItemPrice:    req.Amount,
		ItemQuantity: 1,
	}})
	if err != nil {
		return "", fmt.Errorf("zalopay: failed to marshal items: %w", err)
	}

	mac := signature.SignSHA256(z.cfg.Key1, signature.PipeJoined([]string{
		z.cfg.AppID,
		appTransID,
		appUser,
		strconv.FormatInt(req.Amount, 10),
		strconv.FormatInt(appTime, 10),
		string(embedData),
		string(items),
	}))

	appID, err := strconv.Atoi(z.cfg.AppID)
	if err != nil {
		return "", fmt.Errorf("zalopay: invalid app id %q: %w", z.cfg.AppID, err)
	}

	reqBody := zaloPayCreateRequest{
		AppID:       appID,
		AppTransID:  appTransID,
		AppUser:     appUser,
		AppTime:     appTime,
		Amount:      req.Amount,
		Description: req.OrderInfo,
		Item:        string(items),
		EmbedData:   string(embedData),
		CallbackURL: z.cfg.CallbackURL,
		Mac:         mac,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("zalopay: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, z.cfg.Endpoint+"/create", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("zalopay: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := z.client.Do(httpReq)
	if err != nil {
		return "", &Error{Provider: models.MethodZaloPay, Message: err.Error()}
	}
	defer resp.Body.Close()

	var createResp zaloPayCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&createResp); err != nil {
		return "", &Error{Provider: models.MethodZaloPay, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}

	if createResp.ReturnCode != 1 {
		message := createResp.ReturnMessage
		if createResp.SubReturnMessage != "" {
			message += " - " + createResp.SubReturnMessage
		}
		return "", &Error{
			Provider: models.MethodZaloPay,
			Code:     strconv.Itoa(createResp.ReturnCode),
			Message:  message,
		}
	}
	if createResp.OrderURL == "" {
		return "", &Error{Provider: models.MethodZaloPay, Message: "response missing order_url"}
	}

	return createResp.OrderURL, nil
}

// CallbackData is the parsed payload of a verified server callback.
type CallbackData struct {
	AppID      int    `json:"app_id"`
	AppTransID string `json:"app_trans_id"`
	AppUser    string `json:"app_user"`
	AppTime    int64  `json:"app_time"`
	Amount     int64  `json:"amount"`
	ZpTransID  int64  `json:"zp_trans_id"`
}

// VerifyCallback recomputes the MAC over the raw data envelope using Key2.
func (z *ZaloPay) VerifyCallback(data, mac string) bool {
	return signature.VerifySHA256(z.cfg.Key2, data, mac)
}

// ParseCallback decodes the data envelope. Call VerifyCallback first.
func (z *ZaloPay) ParseCallback(data string) (*CallbackData, error) {
	var cb CallbackData
	if err := json.Unmarshal([]byte(data), &cb); err != nil {
		return nil, fmt.Errorf("zalopay: malformed callback data: %w", err)
	}
	return &cb, nil
}
