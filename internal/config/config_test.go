package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"APP_ENV":                    "",
		"PHONEPE_MID":                "",
		"PHONEPE_SECRET":             "",
		"STOREFRONT_BASE_URL":        "",
		"PAYMENT_CALLBACK_BASE_URL":  "",
		"PAYMENT_RETRY_MAX_ATTEMPTS": "",
		"PAYMENT_HTTP_TIMEOUT":       "",
	})
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.False(t, cfg.Production())
	require.False(t, cfg.PaymentConfigured())
	require.Equal(t, "http://localhost:5173", cfg.StorefrontBaseURL)
	require.Equal(t, cfg.StorefrontBaseURL, cfg.PaymentCallbackBaseURL)
	require.Equal(t, 1, cfg.PaymentRetryMaxAttempts)
	require.Equal(t, 10*time.Second, cfg.PaymentHTTPTimeout)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"APP_ENV":                    "production",
		"PHONEPE_MID":                "MERCHANT",
		"PHONEPE_SECRET":             "secret",
		"STOREFRONT_BASE_URL":        "https://shop.example/",
		"PAYMENT_CALLBACK_BASE_URL":  "https://api.example",
		"PAYMENT_RETRY_MAX_ATTEMPTS": "3",
		"PAYMENT_RETRY_BASE":         "not-a-duration",
		"PORT":                       ":9090",
	})
	require.NoError(t, err)
	require.True(t, cfg.Production())
	require.True(t, cfg.PaymentConfigured())
	require.Equal(t, "https://shop.example", cfg.StorefrontBaseURL)
	require.Equal(t, "https://api.example", cfg.PaymentCallbackBaseURL)
	require.Equal(t, 3, cfg.PaymentRetryMaxAttempts)
	require.Equal(t, 200*time.Millisecond, cfg.PaymentRetryBase)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}
