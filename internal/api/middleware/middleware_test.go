package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/lifeledger/internal/api/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Cache ---

type mockCache struct {
	counts map[string]int64
	err    error
}

func (m *mockCache) Ping(_ context.Context) error { return nil }

func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	if m.counts == nil {
		m.counts = make(map[string]int64)
	}
	m.counts[key]++
	return m.counts[key], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
	req.RemoteAddr = remote
	return req
}

// --- Logger ---

func TestLogger_PassesThroughStatus(t *testing.T) {
	h := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

// --- Recovery ---

func TestRecovery_ConvertsPanicTo500(t *testing.T) {
	h := mw.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "INTERNAL_ERROR", errObj["code"])
}

func TestRecovery_EchoesRequestID(t *testing.T) {
	h := chimw.RequestID(mw.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	})))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set(chimw.RequestIDHeader, "req-42")
	h.ServeHTTP(w, r)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "req-42", details["request_id"])
}

// --- RateLimit ---

func TestRateLimit_AllowsUpToLimitThenRejects(t *testing.T) {
	h := mw.NewRateLimit(&mockCache{}, 2).Limit(okHandler())

	for i := range 2 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request("10.0.0.1:5000"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request("10.0.0.1:5001"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error"].(map[string]any)["code"])
}

func TestRateLimit_ClientsAreCountedSeparately(t *testing.T) {
	h := mw.NewRateLimit(&mockCache{}, 1).Limit(okHandler())

	for _, remote := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request(remote))
		assert.Equal(t, http.StatusOK, w.Code, remote)
	}
}

func TestRateLimit_CacheErrorFailsOpen(t *testing.T) {
	h := mw.NewRateLimit(&mockCache{err: errors.New("redis down")}, 1).Limit(okHandler())

	for range 3 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request("10.0.0.1:1"))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimit_NilCacheDisablesLimit(t *testing.T) {
	h := mw.NewRateLimit(nil, 1).Limit(okHandler())

	for range 3 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request("10.0.0.1:1"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}
