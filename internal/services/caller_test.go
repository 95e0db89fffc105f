package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/pkg/config"
	"github.com/quantpulse/pulse/pkg/logger"
)

// testConfig points every collaborator at the given base URL with a
// permissive local rate limit.
func testConfig(baseURL string, timeout time.Duration) *config.Config {
	ep := config.ServiceEndpoint{BaseURL: baseURL, Timeout: timeout}
	return &config.Config{
		Services: config.ServicesConfig{
			Scan:            ep,
			News:            ep,
			Pattern:         ep,
			Technical:       ep,
			Risk:            ep,
			Execution:       ep,
			RateLimit:       1000,
			RateLimitWindow: time.Second,
		},
	}
}

func newTestCaller(baseURL string, timeout time.Duration) *Caller {
	cfg := testConfig(baseURL, timeout)
	return NewCaller(cfg, logger.NewNop(), nil, NewHealthRegistry())
}

func TestCaller_Call_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scan", r.URL.Path)
		w.Write([]byte(`{"rows":[]}`))
	}))
	defer server.Close()

	caller := newTestCaller(server.URL, 2*time.Second)
	result := caller.Call(context.Background(), contracts.ServiceScan, "scan", map[string]string{"mode": "normal"}, 0)

	require.True(t, result.Success)
	assert.Equal(t, contracts.ErrKindNone, result.ErrorKind)
	assert.JSONEq(t, `{"rows":[]}`, string(result.Payload))
	assert.Greater(t, result.Latency, time.Duration(0))
}

func TestCaller_Call_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	caller := newTestCaller(server.URL, 2*time.Second)
	result := caller.Call(context.Background(), contracts.ServiceScan, "scan", nil, 50*time.Millisecond)

	require.False(t, result.Success)
	assert.Equal(t, contracts.ErrKindTimeout, result.ErrorKind)
}

func TestCaller_Call_Unreachable(t *testing.T) {
	// A server that is already closed refuses connections.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	caller := newTestCaller(url, time.Second)
	result := caller.Call(context.Background(), contracts.ServiceScan, "scan", nil, 0)

	require.False(t, result.Success)
	assert.Equal(t, contracts.ErrKindUnreachable, result.ErrorKind)
}

func TestCaller_Call_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "position limit exceeded", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	caller := newTestCaller(server.URL, time.Second)
	result := caller.Call(context.Background(), contracts.ServiceExecution, "orders", nil, 0)

	require.False(t, result.Success)
	assert.Equal(t, contracts.ErrKindRejected, result.ErrorKind)
	assert.Contains(t, result.Error, "position limit exceeded")
}

func TestCaller_Call_UpstreamFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	caller := newTestCaller(server.URL, time.Second)
	result := caller.Call(context.Background(), contracts.ServiceScan, "scan", nil, 0)

	require.False(t, result.Success)
	assert.Equal(t, contracts.ErrKindUpstreamFault, result.ErrorKind)
}

func TestCaller_Call_UnknownService(t *testing.T) {
	caller := newTestCaller("http://localhost:1", time.Second)
	result := caller.Call(context.Background(), contracts.ServiceName("ghost"), "op", nil, 0)

	require.False(t, result.Success)
	assert.Equal(t, contracts.ErrKindUnreachable, result.ErrorKind)
}

func TestCaller_CircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	caller := newTestCaller(server.URL, time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result := caller.Call(ctx, contracts.ServiceScan, "scan", nil, 0)
		assert.Equal(t, contracts.ErrKindUpstreamFault, result.ErrorKind)
	}

	// The breaker is open: the sixth call never reaches the server.
	result := caller.Call(ctx, contracts.ServiceScan, "scan", nil, 0)
	assert.Equal(t, contracts.ErrKindUnreachable, result.ErrorKind)
	assert.Equal(t, "circuit breaker open", result.Error)
	assert.Equal(t, 5, calls)

	// Breakers are per collaborator: the news endpoint still gets
	// through to the (equally broken) server.
	newsResult := caller.Call(ctx, contracts.ServiceNews, "catalysts", nil, 0)
	assert.Equal(t, contracts.ErrKindUpstreamFault, newsResult.ErrorKind)
	assert.Equal(t, 6, calls)
}

func TestCaller_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	caller := newTestCaller(server.URL, time.Second)
	result := caller.Ping(context.Background(), contracts.ServiceScan)
	assert.True(t, result.Success)
}

func TestCaller_RecordsHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL, time.Second)
	registry := NewHealthRegistry()
	caller := NewCaller(cfg, logger.NewNop(), nil, registry)

	caller.Call(context.Background(), contracts.ServiceScan, "scan", nil, 0)

	health, ok := registry.Get(contracts.ServiceScan)
	require.True(t, ok)
	assert.True(t, health.Healthy)
	assert.False(t, health.LastChecked.IsZero())
}

func TestDecodeResult(t *testing.T) {
	result := contracts.ServiceCallResult{
		Service:   contracts.ServiceScan,
		Operation: "scan",
		Success:   true,
		Payload:   []byte(`{"rows":[{"symbol":"AAPL","price":190.5,"volume":1000000,"change_pct":2.1}]}`),
	}

	var decoded struct {
		Rows []contracts.ScanRow `json:"rows"`
	}
	require.True(t, DecodeResult(&result, &decoded))
	require.Len(t, decoded.Rows, 1)
	assert.Equal(t, "AAPL", decoded.Rows[0].Symbol)

	// A garbage payload downgrades the result in place.
	bad := contracts.ServiceCallResult{Success: true, Payload: []byte(`not json`)}
	var dest map[string]interface{}
	assert.False(t, DecodeResult(&bad, &dest))
	assert.False(t, bad.Success)
	assert.Equal(t, contracts.ErrKindMalformedResponse, bad.ErrorKind)

	// Failed results never decode.
	failed := contracts.ServiceCallResult{Success: false}
	assert.False(t, DecodeResult(&failed, &dest))
}
