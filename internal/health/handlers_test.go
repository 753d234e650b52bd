package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/desawali/storefront-api/internal/health"
)

type stubChecker struct {
	dbErr    error
	redisErr error
}

func (s stubChecker) PingDB(context.Context, time.Duration) error    { return s.dbErr }
func (s stubChecker) PingRedis(context.Context, time.Duration) error { return s.redisErr }

func ready(t *testing.T, h health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr.Code, body
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}

func TestReadySuccess(t *testing.T) {
	code, body := ready(t, health.Handler{
		Checker:           stubChecker{},
		GatewayConfigured: func() bool { return false },
	})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["db"])
	require.Equal(t, "ok", body["redis"])
	require.Equal(t, "not_configured", body["payment_gateway"])
}

func TestReadyFailureHidesError(t *testing.T) {
	code, body := ready(t, health.Handler{Checker: stubChecker{dbErr: errors.New("password authentication failed for user shop")}})
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "unavailable", body["db"])
}

func TestReadyOptionalRedis(t *testing.T) {
	h := health.Handler{Checker: stubChecker{redisErr: health.ErrNotConfigured}, RedisOptional: true}
	code, body := ready(t, h)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "not_configured", body["redis"])

	h.RedisOptional = false
	code, _ = ready(t, h)
	require.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = ready(t, health.Handler{Checker: stubChecker{dbErr: health.ErrNotConfigured}, RedisOptional: true})
	require.Equal(t, http.StatusServiceUnavailable, code, "database is always required")
}
