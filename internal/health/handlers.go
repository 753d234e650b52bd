package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/desawali/storefront-api/internal/common"
)

// ErrNotConfigured is returned by a Checker for a dependency the process runs without.
var ErrNotConfigured = errors.New("health: dependency not configured")

var draining atomic.Bool

// SetReady toggles readiness; false is used while the server drains on shutdown.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
	// RedisOptional keeps the service ready without Redis; replay cache, locks and
	// rate limits are then skipped.
	RedisOptional bool
	// GatewayConfigured reports whether merchant credentials are loaded. It is informational.
	GatewayConfigured func() bool
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes. Probe errors are summarised, never echoed.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSONError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "server is shutting down")
		return
	}
	if h.Checker == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "DEPENDENCIES_UNAVAILABLE", "dependencies unavailable")
		return
	}
	ctx := r.Context()
	dbStatus, dbOK := probeStatus(h.Checker.PingDB(ctx, h.dbTimeout()), false)
	redisStatus, redisOK := probeStatus(h.Checker.PingRedis(ctx, h.redisTimeout()), h.RedisOptional)
	status := map[string]string{
		"db":    dbStatus,
		"redis": redisStatus,
	}
	if h.GatewayConfigured != nil {
		if h.GatewayConfigured() {
			status["payment_gateway"] = "configured"
		} else {
			status["payment_gateway"] = "not_configured"
		}
	}
	code := http.StatusOK
	if !dbOK || !redisOK {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func probeStatus(err error, optional bool) (string, bool) {
	switch {
	case err == nil:
		return "ok", true
	case errors.Is(err, ErrNotConfigured):
		return "not_configured", optional
	default:
		return "unavailable", false
	}
}

func (h Handler) dbTimeout() time.Duration {
	if h.DBTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.DBTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
