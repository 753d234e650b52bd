package resilience

import (
	"math/rand/v2"
	"time"
)

// MaxBackoff caps a single retry delay.
const MaxBackoff = 10 * time.Second

// Backoff returns base*2^(attempt-1) capped at MaxBackoff, spread by ±jitterPct
// (0.2 means 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base
	for i := 1; i < attempt && d < MaxBackoff; i++ {
		d *= 2
	}
	d = min(d, MaxBackoff)
	if jitterPct <= 0 {
		return d
	}
	jitter := float64(d) * min(jitterPct, 1)
	return d + time.Duration((rand.Float64()*2-1)*jitter)
}
