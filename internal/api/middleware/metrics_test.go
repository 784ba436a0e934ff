package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficsense/trafficsense/internal/api/middleware"
)

func serveWithMetrics(t *testing.T, status int, body string) *httptest.ResponseRecorder {
	t.Helper()

	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if status != 0 {
			w.WriteHeader(status)
		}
		_, _ = w.Write([]byte(body))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/traffic", http.NoBody))
	return rec
}

func TestNewMetrics(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)
	assert.NotNil(t, metrics)
}

func TestMetrics_Middleware_PassesThroughResponse(t *testing.T) {
	rec := serveWithMetrics(t, http.StatusOK, `{"data":[]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"data":[]}`, rec.Body.String())
}

func TestMetrics_Middleware_ServerError(t *testing.T) {
	rec := serveWithMetrics(t, http.StatusInternalServerError, "error")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetrics_Middleware_ClientError(t *testing.T) {
	rec := serveWithMetrics(t, http.StatusBadRequest, `{"error":"bad request"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetrics_Middleware_DefaultStatusCode(t *testing.T) {
	// Handler never calls WriteHeader; recorded status should be 200.
	rec := serveWithMetrics(t, 0, "response")
	assert.Equal(t, http.StatusOK, rec.Code)
}
