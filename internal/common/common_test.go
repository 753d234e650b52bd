package common_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/desawali/storefront-api/internal/common"
)

func TestJSONErrorShape(t *testing.T) {
	rr := httptest.NewRecorder()
	common.JSONError(rr, http.StatusBadRequest, "BAD_REQUEST", "nope")

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "error", body["status"])
	require.Equal(t, "BAD_REQUEST", body["code"])
	require.Equal(t, "nope", body["message"])
	_, hasDetails := body["details"]
	require.False(t, hasDetails)
}

func TestWriteAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	wrapped := errors.Join(errors.New("ctx"), common.NewAppError("CONFLICT", "busy", http.StatusConflict, nil))
	common.WriteAppError(rr, wrapped)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	common.WriteAppError(rr, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "boom")
}

func TestSha256Hex(t *testing.T) {
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", common.Sha256Hex(""))
}

func TestIdempotencyMiddleware(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	status := http.StatusOK
	calls := 0
	handler := common.Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/payments/create", nil)
		req.Header.Set(common.IdempotencyHeader, "abc")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusConflict, send())
	require.Equal(t, 1, calls)

	mr.FlushAll()
	status = http.StatusInternalServerError
	require.Equal(t, http.StatusInternalServerError, send())
	status = http.StatusOK
	require.Equal(t, http.StatusOK, send(), "key released after server error")
	require.Equal(t, 3, calls)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	require.Equal(t, "203.0.113.1", common.ClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	require.Equal(t, "198.51.100.7", common.ClientIP(req))
}

func TestClientIPSkipsGarbage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "unknown")
	req.Header.Set("X-Real-IP", " 2001:db8::1 ")
	require.Equal(t, "2001:db8::1", common.ClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::ffff:192.0.2.9]:443"
	require.Equal(t, "192.0.2.9", common.ClientIP(req))
}

func TestAppErrorMessage(t *testing.T) {
	cause := errors.New("dial tcp")
	err := common.NewAppError("PERSISTENCE_ERROR", "Database update failed", http.StatusInternalServerError, cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "PERSISTENCE_ERROR: Database update failed: dial tcp", err.Error())
}
