package provider

import (
	"context"
	"strconv"
	"time"

	"github.com/shopapp/payment-service/internal/interfaces"
	"github.com/shopapp/payment-service/internal/models"
	"github.com/shopapp/payment-service/internal/signature"
)

// VNPayConfig holds the merchant credentials and endpoints for the
// bank-gateway provider. Passed explicitly into the strategy; no globals.
type VNPayConfig struct {
	URL        string
	ReturnURL  string
	TmnCode    string
	HashSecret string
	Version    string
	Command    string
	OrderType  string
	Timeout    time.Duration
}

const vnpayDateFormat = "20060102150405"

// vnpayZone is the gateway's merchant timezone; create and expiry timestamps
// are signed, so both sides must render them in the same zone.
var vnpayZone = time.FixedZone("GMT+7", 7*3600)

// VNPay builds redirect URLs for the gateway provider and verifies its
// return query strings. The redirect expires 15 minutes after creation.
type VNPay struct {
	cfg      VNPayConfig
	payments interfaces.PaymentRepository
	orders   interfaces.OrderRepository
	now      func() time.Time
}

func NewVNPay(cfg VNPayConfig, payments interfaces.PaymentRepository, orders interfaces.OrderRepository) *VNPay {
	if cfg.Version == "" {
		cfg.Version = "2.1.0"
	}
	if cfg.Command == "" {
		cfg.Command = "pay"
	}
	if cfg.OrderType == "" {
		cfg.OrderType = "other"
	}
	return &VNPay{cfg: cfg, payments: payments, orders: orders, now: time.Now}
}

func (v *VNPay) Method() models.PaymentMethod {
	return models.MethodVNPay
}

func (v *VNPay) CreatePayment(ctx context.Context, req models.PaymentRequest) (string, error) {
	if _, err := v.orders.GetByID(ctx, req.OrderID); err != nil {
		return "", err
	}

	payment := &models.Payment{
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		OrderInfo:     req.OrderInfo,
		PaymentMethod: models.MethodVNPay,
		Status:        models.StatusPending,
	}
	if err := v.payments.Upsert(ctx, payment); err != nil {
		return "", err
	}

	createdAt := v.now().In(vnpayZone)
	pairs := []signature.Pair{
		{Name: "vnp_Version", Value: v.cfg.Version},
		{Name: "vnp_Command", Value: v.cfg.Command},
		{Name: "vnp_TmnCode", Value: v.cfg.TmnCode},
		// Amount is sent in hundredths of the minor unit, no decimal point.
		{Name: "vnp_Amount", Value: strconv.FormatInt(req.Amount*100, 10)},
		{Name: "vnp_CurrCode", Value: "VND"},
		// Preselects the bank on the gateway page; empty means let the payer
		// choose, and SortedQuery drops it from the message.
		{Name: "vnp_BankCode", Value: req.BankCode},
		{Name: "vnp_TxnRef", Value: strconv.FormatInt(req.OrderID, 10)},
		{Name: "vnp_OrderInfo", Value: req.OrderInfo},
		{Name: "vnp_OrderType", Value: v.cfg.OrderType},
		{Name: "vnp_Locale", Value: "vn"},
		{Name: "vnp_ReturnUrl", Value: v.cfg.ReturnURL},
		{Name: "vnp_IpAddr", Value: "127.0.0.1"},
		{Name: "vnp_CreateDate", Value: createdAt.Format(vnpayDateFormat)},
		{Name: "vnp_ExpireDate", Value: createdAt.Add(15 * time.Minute).Format(vnpayDateFormat)},
	}

	// Creation signs the ASCII-encoded canonical message; the return leg
	// below signs UTF-8. The gateway requires exactly this asymmetry.
	// Field names are URL-safe, so the canonical message doubles as the
	// redirect query string.
	hashData := signature.SortedQuery(pairs, signature.EncodeASCII)
	secureHash := signature.SignSHA512(v.cfg.HashSecret, hashData)

	return v.cfg.URL + "?" + hashData + "&vnp_SecureHash=" + secureHash, nil
}

// HandleReturn verifies the supplied query parameters against the recomputed
// digest and classifies the outcome. The caller applies the state change.
func (v *VNPay) HandleReturn(params map[string]string) ReturnResult {
	supplied := params["vnp_SecureHash"]

	pairs := make([]signature.Pair, 0, len(params))
	for name, value := range params {
		if name == "vnp_SecureHash" || name == "vnp_SecureHashType" {
			continue
		}
		pairs = append(pairs, signature.Pair{Name: name, Value: value})
	}
	hashData := signature.SortedQuery(pairs, signature.EncodeUTF8)

	if !signature.VerifySHA512(v.cfg.HashSecret, hashData, supplied) {
		return ReturnResult{Outcome: ReturnSignatureInvalid}
	}

	orderID, err := strconv.ParseInt(params["vnp_TxnRef"], 10, 64)
	if err != nil {
		return ReturnResult{Outcome: ReturnSignatureInvalid}
	}

	result := ReturnResult{
		OrderID:       orderID,
		TransactionNo: params["vnp_TransactionNo"],
		ResponseCode:  params["vnp_ResponseCode"],
		BankCode:      params["vnp_BankCode"],
	}
	if result.ResponseCode == "00" {
		result.Outcome = ReturnSuccess
	} else {
		result.Outcome = ReturnFailure
	}
	return result
}
