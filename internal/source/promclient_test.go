package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promResult(value string) string {
	return fmt.Sprintf(`{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1756166400,"%s"]}]}}`, value)
}

const promEmpty = `{"status":"success","data":{"resultType":"vector","result":[]}}`

func TestQueryScalar(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/query", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("query"))
		fmt.Fprint(w, promResult("42.5"))
	}))
	defer server.Close()

	client := NewClient(zerolog.Nop(), server.URL, time.Second, 1)
	value, ok, err := client.QueryScalar(context.Background(), `sum(vllm:num_requests_waiting)`)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42.5, value)
}

func TestQueryScalarEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, promEmpty)
	}))
	defer server.Close()

	client := NewClient(zerolog.Nop(), server.URL, time.Second, 1)
	_, ok, err := client.QueryScalar(context.Background(), `up`)

	// Absence of data is not a failure.
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryScalarNaN(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, promResult("NaN"))
	}))
	defer server.Close()

	client := NewClient(zerolog.Nop(), server.URL, time.Second, 1)
	_, ok, err := client.QueryScalar(context.Background(), `avg(vllm:gpu_cache_usage_perc)`)

	require.NoError(t, err)
	assert.False(t, ok, "NaN samples must be rejected, not stored")
}

func TestQueryScalarAuthFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(zerolog.Nop(), server.URL, time.Second, 3)
	_, _, err := client.QueryScalar(context.Background(), `up`)

	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, int32(1), calls.Load(), "auth failures must not be retried")
}

func TestQueryScalarRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, promResult("7"))
	}))
	defer server.Close()

	client := NewClient(zerolog.Nop(), server.URL, time.Second, 3)
	started := time.Now()
	value, ok, err := client.QueryScalar(context.Background(), `up`)
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7.0, value)
	assert.Equal(t, int32(3), calls.Load())
	// Backoff doubles from one second: 1s after the first failure, 2s
	// after the second.
	assert.GreaterOrEqual(t, elapsed, 2900*time.Millisecond)
	assert.Less(t, elapsed, 6*time.Second)
}

func TestQueryScalarRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(zerolog.Nop(), server.URL, time.Second, 2)
	_, _, err := client.QueryScalar(context.Background(), `up`)

	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueryScalarBadRequestNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(zerolog.Nop(), server.URL, time.Second, 3)
	_, _, err := client.QueryScalar(context.Background(), `up`)

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "auth error", err: &AuthError{Status: 401}, expected: false},
		{name: "client error", err: &StatusError{Status: 404}, expected: false},
		{name: "server error", err: &StatusError{Status: 503}, expected: true},
		{name: "transport error", err: fmt.Errorf("connection refused"), expected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, retryable(tt.err))
		})
	}
}
