package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/shopapp/payment-service/internal/provider"
)

type Config struct {
	Port         string
	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	NatsURL      string

	VNPay   provider.VNPayConfig
	MoMo    provider.MoMoConfig
	ZaloPay provider.ZaloPayConfig
}

func Load() *Config {
	// Local development convenience; the file is absent in containers.
	_ = godotenv.Load()

	return &Config{
		Port:         getenv("PORT", "8082"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     getenv("REDIS_URL", "localhost:6379"),
		KafkaBrokers: getenv("KAFKA_BROKERS", "localhost:9092"),
		NatsURL:      getenv("NATS_URL", "nats://localhost:4222"),

		VNPay: provider.VNPayConfig{
			URL:        getenv("VNPAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
			ReturnURL:  os.Getenv("VNPAY_RETURN_URL"),
			TmnCode:    os.Getenv("VNPAY_TMN_CODE"),
			HashSecret: os.Getenv("VNPAY_HASH_SECRET"),
			Timeout:    providerTimeout(),
		},
		MoMo: provider.MoMoConfig{
			Endpoint:    getenv("MOMO_ENDPOINT", "https://test-payment.momo.vn/v2/gateway/api/create"),
			PartnerCode: os.Getenv("MOMO_PARTNER_CODE"),
			AccessKey:   os.Getenv("MOMO_ACCESS_KEY"),
			SecretKey:   os.Getenv("MOMO_SECRET_KEY"),
			ReturnURL:   os.Getenv("MOMO_RETURN_URL"),
			NotifyURL:   os.Getenv("MOMO_NOTIFY_URL"),
			Timeout:     providerTimeout(),
		},
		ZaloPay: provider.ZaloPayConfig{
			Endpoint:    getenv("ZALOPAY_ENDPOINT", "https://sb-openapi.zalopay.vn/v2"),
			AppID:       os.Getenv("ZALOPAY_APP_ID"),
			Key1:        os.Getenv("ZALOPAY_KEY1"),
			Key2:        os.Getenv("ZALOPAY_KEY2"),
			RedirectURL: os.Getenv("ZALOPAY_REDIRECT_URL"),
			CallbackURL: os.Getenv("ZALOPAY_CALLBACK_URL"),
			Timeout:     providerTimeout(),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func providerTimeout() time.Duration {
	if v := os.Getenv("PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 10 * time.Second
}
