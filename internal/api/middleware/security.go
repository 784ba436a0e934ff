package middleware

import (
	"net/http"
	"os"

	"github.com/trafficsense/trafficsense/internal/api/models"
)

// securityHeaders are attached to every response. The API serves JSON
// only, so the CSP and frame policy can be fully locked down.
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Permissions-Policy":        "geolocation=(), camera=(), microphone=()",
}

// SecurityHeaders sets the standard security response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range securityHeaders {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects plaintext requests when REQUIRE_TLS=true. TLS is
// terminated at the load balancer, so the check reads X-Forwarded-Proto
// rather than the local connection state.
func RequireTLS(next http.Handler) http.Handler {
	enforce := os.Getenv("REQUIRE_TLS") == "true"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if enforce {
			if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" && proto != "https" {
				problem := models.NewProblem(
					"https://api.trafficsense.in/problems/tls-required",
					"TLS required",
					http.StatusForbidden,
					GetRequestID(r.Context()),
				)
				problem.Detail = "This endpoint requires HTTPS"
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
