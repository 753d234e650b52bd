package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/desawali/storefront-api/internal/obs"
	"github.com/desawali/storefront-api/internal/resilience"
)

const (
	ProductionBaseURL = "https://api.phonepe.com/apis/hermes"
	SandboxBaseURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox"

	headerVerify     = "X-VERIFY"
	headerMerchantID = "X-MERCHANT-ID"

	instrumentPayPage = "PAY_PAGE"
	redirectModePost  = "POST"

	maxProviderBody = 1 << 20
)

// BaseURLFor picks the provider host for the deployment mode unless override is set.
func BaseURLFor(production bool, override string) string {
	if o := strings.TrimRight(strings.TrimSpace(override), "/"); o != "" {
		return o
	}
	if production {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// PhonePe implements Gateway against the PhonePe pay-page API.
type PhonePe struct {
	MerchantID string
	Secret     string
	BaseURL    string
	HTTP       resilience.Doer
}

type payPayload struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	MobileNumber          string            `json:"mobileNumber"`
	PaymentInstrument     paymentInstrument `json:"paymentInstrument"`
}

type paymentInstrument struct {
	Type string `json:"type"`
}

type payResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		InstrumentResponse struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	} `json:"data"`
}

// Configured reports whether merchant id and secret are both set.
func (p PhonePe) Configured() bool {
	return strings.TrimSpace(p.MerchantID) != "" && strings.TrimSpace(p.Secret) != "" && p.HTTP != nil
}

// EncodePayRequest returns the base64 request document and its checksum.
func (p PhonePe) EncodePayRequest(req PayRequest) (string, string, error) {
	raw, err := json.Marshal(payPayload{
		MerchantID:            p.MerchantID,
		MerchantTransactionID: req.TransactionID,
		MerchantUserID:        req.MerchantUserID,
		Amount:                req.Amount,
		RedirectURL:           req.RedirectURL,
		RedirectMode:          redirectModePost,
		CallbackURL:           req.CallbackURL,
		MobileNumber:          req.MobileNumber,
		PaymentInstrument:     paymentInstrument{Type: instrumentPayPage},
	})
	if err != nil {
		return "", "", fmt.Errorf("encode pay payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	sig, err := Sign(encoded, PayPath, p.Secret)
	if err != nil {
		return "", "", err
	}
	return encoded, sig, nil
}

// Pay opens a pay-page transaction and returns the customer redirect.
func (p PhonePe) Pay(ctx context.Context, req PayRequest) (PayResult, error) {
	if !p.Configured() {
		return PayResult{}, ErrNotConfigured
	}
	ctx, span := otel.Tracer("payment.phonepe").Start(ctx, "PhonePe.Pay")
	defer span.End()
	span.SetAttributes(attribute.String("payment.transaction_id", req.TransactionID))

	encoded, sig, err := p.EncodePayRequest(req)
	if err != nil {
		return PayResult{}, err
	}
	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return PayResult{}, fmt.Errorf("encode pay body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL()+PayPath, bytes.NewReader(body))
	if err != nil {
		return PayResult{}, fmt.Errorf("build pay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerVerify, sig)

	status, raw, err := p.do(ctx, "pay", httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pay request failed")
		return PayResult{}, err
	}
	var parsed payResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		span.RecordError(err)
		return PayResult{}, fmt.Errorf("decode pay response (http %d): %w", status, err)
	}
	url := strings.TrimSpace(parsed.Data.InstrumentResponse.RedirectInfo.URL)
	if !parsed.Success || url == "" {
		upErr := &UpstreamError{Operation: "pay", StatusCode: status, Code: parsed.Code, Message: parsed.Message}
		span.SetStatus(codes.Error, "provider rejected payment")
		return PayResult{}, upErr
	}
	return PayResult{RedirectURL: url, Raw: raw}, nil
}

// Status queries the provider for a transaction and returns the JSON document unmodified.
func (p PhonePe) Status(ctx context.Context, transactionID string) (json.RawMessage, error) {
	if !p.Configured() {
		return nil, ErrNotConfigured
	}
	ctx, span := otel.Tracer("payment.phonepe").Start(ctx, "PhonePe.Status")
	defer span.End()
	span.SetAttributes(attribute.String("payment.transaction_id", transactionID))

	path := StatusPath(p.MerchantID, transactionID)
	sig, err := Sign("", path, p.Secret)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL()+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerVerify, sig)
	httpReq.Header.Set(headerMerchantID, p.MerchantID)

	status, raw, err := p.do(ctx, "status", httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "status request failed")
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("status response is not json (http %d)", status)
	}
	return json.RawMessage(raw), nil
}

func (p PhonePe) do(ctx context.Context, operation string, req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := p.HTTP.Do(ctx, req)
	obs.ObserveMillis(obs.ProviderLatency, time.Since(start), operation)
	if err != nil {
		return 0, nil, fmt.Errorf("%s request: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBody+1))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", operation, err)
	}
	if len(raw) > maxProviderBody {
		return resp.StatusCode, nil, errors.New(operation + " response too large")
	}
	return resp.StatusCode, raw, nil
}

func (p PhonePe) baseURL() string {
	return strings.TrimRight(p.BaseURL, "/")
}
