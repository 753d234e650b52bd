package security

import (
	"net/http"
	"strconv"
	"time"
)

const defaultHSTSMaxAge = 365 * 24 * time.Hour

// apiHeaders are safe for every JSON response: nothing here is meant to be framed,
// sniffed, cached or executed by a browser.
var apiHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "no-referrer",
	"Cache-Control":           "no-store",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
}

// Headers sets the API response headers. HSTS is only sent on requests that arrived over
// TLS, directly or via a proxy setting X-Forwarded-Proto.
type Headers struct {
	HSTS                  bool
	HSTSMaxAge            time.Duration
	HSTSIncludeSubdomains bool
}

func (h Headers) hstsValue() string {
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	v := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10)
	if h.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	return v
}

func (h Headers) Middleware(next http.Handler) http.Handler {
	hsts := h.hstsValue()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		for k, v := range apiHeaders {
			header.Set(k, v)
		}
		if h.HSTS && (r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https") {
			header.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}
