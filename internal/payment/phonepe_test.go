package payment_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/desawali/storefront-api/internal/payment"
	"github.com/desawali/storefront-api/internal/resilience"
)

const testMerchant = "MID1"

// providerStub emulates the pay and status endpoints and counts calls.
type providerStub struct {
	t        *testing.T
	calls    atomic.Int32
	payReply string
	status   int
	lastPay  map[string]any
}

func newProviderStub(t *testing.T) (*providerStub, *httptest.Server) {
	stub := &providerStub{
		t:        t,
		status:   http.StatusOK,
		payReply: `{"success":true,"code":"PAYMENT_INITIATED","message":"Payment initiated","data":{"merchantId":"MID1","instrumentResponse":{"type":"PAY_PAGE","redirectInfo":{"url":"https://mercury.example/pay/abc","method":"GET"}}}}`,
	}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return stub, srv
}

func (s *providerStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == payment.PayPath:
		var body struct {
			Request string `json:"request"`
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil || body.Request == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !payment.Verify(r.Header.Get("X-VERIFY"), body.Request, payment.PayPath, testSecret) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"code":"KEY_NOT_CONFIGURED","message":"Key not found"}`)
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(body.Request)
		if err == nil {
			_ = json.Unmarshal(decoded, &s.lastPay)
		}
		w.WriteHeader(s.status)
		_, _ = io.WriteString(w, s.payReply)
	case r.Method == http.MethodGet && r.URL.Path == payment.StatusPath(testMerchant, "TXN_ORD1_1700000000000"):
		if r.Header.Get("X-MERCHANT-ID") != testMerchant || !payment.Verify(r.Header.Get("X-VERIFY"), "", r.URL.Path, testSecret) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"code":"UNAUTHORIZED"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"code":"PAYMENT_SUCCESS","data":{"merchantTransactionId":"TXN_ORD1_1700000000000","state":"COMPLETED","amount":50000}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"success":false,"code":"NOT_FOUND"}`)
	}
}

func newGateway(srv *httptest.Server) payment.PhonePe {
	return payment.PhonePe{
		MerchantID: testMerchant,
		Secret:     testSecret,
		BaseURL:    srv.URL,
		HTTP:       resilience.HTTPClient{Client: srv.Client(), Target: "phonepe"},
	}
}

func TestBaseURLFor(t *testing.T) {
	require.Equal(t, payment.ProductionBaseURL, payment.BaseURLFor(true, ""))
	require.Equal(t, payment.SandboxBaseURL, payment.BaseURLFor(false, " "))
	require.Equal(t, "http://stub:8080", payment.BaseURLFor(true, "http://stub:8080/"))
}

func TestEncodePayRequestPayload(t *testing.T) {
	gw := payment.PhonePe{MerchantID: testMerchant, Secret: testSecret}
	encoded, sig, err := gw.EncodePayRequest(payment.PayRequest{
		TransactionID:  "TXN_ORD1_1700000000000",
		MerchantUserID: "USER_ORD1",
		Amount:         50000,
		RedirectURL:    "http://shop/payment/success?order_id=ORD1",
		CallbackURL:    "http://api/payments/webhook",
		MobileNumber:   "9876543210",
	})
	require.NoError(t, err)
	require.True(t, payment.Verify(sig, encoded, payment.PayPath, testSecret))

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"merchantId":"MID1",
		"merchantTransactionId":"TXN_ORD1_1700000000000",
		"merchantUserId":"USER_ORD1",
		"amount":50000,
		"redirectUrl":"http://shop/payment/success?order_id=ORD1",
		"redirectMode":"POST",
		"callbackUrl":"http://api/payments/webhook",
		"mobileNumber":"9876543210",
		"paymentInstrument":{"type":"PAY_PAGE"}
	}`, string(raw))
}

func TestPhonePePay(t *testing.T) {
	stub, srv := newProviderStub(t)
	res, err := newGateway(srv).Pay(context.Background(), payment.PayRequest{TransactionID: "TXN_ORD1_1", Amount: 100, MobileNumber: "1"})
	require.NoError(t, err)
	require.Equal(t, "https://mercury.example/pay/abc", res.RedirectURL)
	require.Equal(t, int32(1), stub.calls.Load())
}

func TestPhonePePayProviderFailure(t *testing.T) {
	stub, srv := newProviderStub(t)
	stub.status = http.StatusBadRequest
	stub.payReply = `{"success":false,"code":"BAD_REQUEST","message":"Please check the inputs you have provided."}`

	_, err := newGateway(srv).Pay(context.Background(), payment.PayRequest{TransactionID: "TXN_ORD1_1", Amount: 100})
	var upErr *payment.UpstreamError
	require.ErrorAs(t, err, &upErr)
	require.Equal(t, "Please check the inputs you have provided.", upErr.Message)
	require.Equal(t, http.StatusBadRequest, upErr.StatusCode)
}

func TestPhonePePaySuccessWithoutRedirect(t *testing.T) {
	stub, srv := newProviderStub(t)
	stub.payReply = `{"success":true,"data":{}}`

	_, err := newGateway(srv).Pay(context.Background(), payment.PayRequest{TransactionID: "TXN_ORD1_1", Amount: 100})
	var upErr *payment.UpstreamError
	require.ErrorAs(t, err, &upErr)
	require.Empty(t, upErr.Message)
}

func TestPhonePePayMalformedResponse(t *testing.T) {
	stub, srv := newProviderStub(t)
	stub.payReply = `<html>gateway</html>`

	_, err := newGateway(srv).Pay(context.Background(), payment.PayRequest{TransactionID: "TXN_ORD1_1", Amount: 100})
	require.Error(t, err)
	var upErr *payment.UpstreamError
	require.False(t, errors.As(err, &upErr))
}

func TestPhonePeStatusPassthrough(t *testing.T) {
	_, srv := newProviderStub(t)
	raw, err := newGateway(srv).Status(context.Background(), "TXN_ORD1_1700000000000")
	require.NoError(t, err)
	require.JSONEq(t, `{"success":true,"code":"PAYMENT_SUCCESS","data":{"merchantTransactionId":"TXN_ORD1_1700000000000","state":"COMPLETED","amount":50000}}`, string(raw))
}

func TestPhonePeNotConfigured(t *testing.T) {
	_, err := payment.PhonePe{MerchantID: testMerchant}.Pay(context.Background(), payment.PayRequest{})
	require.ErrorIs(t, err, payment.ErrNotConfigured)
	_, err = payment.PhonePe{Secret: testSecret}.Status(context.Background(), "TXN_ORD1_1")
	require.ErrorIs(t, err, payment.ErrNotConfigured)
}
