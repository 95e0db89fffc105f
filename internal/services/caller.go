package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/quantpulse/pulse/internal/contracts"
	"github.com/quantpulse/pulse/pkg/config"
	"github.com/quantpulse/pulse/pkg/httputil"
	"github.com/quantpulse/pulse/pkg/logger"
	"github.com/quantpulse/pulse/pkg/redis"
)

// Caller is the single entry point for downstream collaborator calls.
// It never returns a Go error for downstream failures: outcomes are
// captured in ServiceCallResult.ErrorKind so the workflow can branch
// without exception-style control flow. No retries happen here; retry
// policy belongs to the workflow step that owns the call.
type Caller struct {
	endpoints map[contracts.ServiceName]*endpoint
	health    *HealthRegistry
	logger    *logger.Logger
}

type endpoint struct {
	baseURL string
	timeout time.Duration
	client  *httputil.Client
	breaker *gobreaker.CircuitBreaker
}

// NewCaller builds a caller with one endpoint and circuit breaker per
// collaborator. Rate limiting uses the Redis sliding window when
// available and a local token bucket otherwise.
func NewCaller(cfg *config.Config, log *logger.Logger, limiter *redis.RateLimiter, health *HealthRegistry) *Caller {
	c := &Caller{
		endpoints: make(map[contracts.ServiceName]*endpoint),
		health:    health,
		logger:    log,
	}

	endpoints := map[contracts.ServiceName]config.ServiceEndpoint{
		contracts.ServiceScan:      cfg.Services.Scan,
		contracts.ServiceNews:      cfg.Services.News,
		contracts.ServicePattern:   cfg.Services.Pattern,
		contracts.ServiceTechnical: cfg.Services.Technical,
		contracts.ServiceRisk:      cfg.Services.Risk,
		contracts.ServiceExecution: cfg.Services.Execution,
	}

	for name, target := range endpoints {
		client := httputil.NewWithTimeout(cfg, log, target.Timeout).DisableRetry()
		if limiter != nil {
			client.WithRateLimiter(limiter, redis.RateLimitConfig{
				Key:    string(name),
				Limit:  cfg.Services.RateLimit,
				Window: cfg.Services.RateLimitWindow,
			})
		} else {
			rps := float64(cfg.Services.RateLimit) / cfg.Services.RateLimitWindow.Seconds()
			client.WithLocalLimiter(rps, cfg.Services.RateLimit)
		}

		c.endpoints[name] = &endpoint{
			baseURL: target.BaseURL,
			timeout: target.Timeout,
			client:  client,
			breaker: newBreaker(string(name), log),
		}
	}

	return c
}

func newBreaker(name string, log *logger.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]interface{}{
				"service": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// Call performs one collaborator operation with the given params and
// an explicit timeout, classifying any failure into an ErrorKind.
// A zero timeout falls back to the endpoint default.
func (c *Caller) Call(ctx context.Context, service contracts.ServiceName, operation string, params interface{}, timeout time.Duration) contracts.ServiceCallResult {
	result := contracts.ServiceCallResult{
		Service:   service,
		Operation: operation,
	}

	ep, ok := c.endpoints[service]
	if !ok {
		result.ErrorKind = contracts.ErrKindUnreachable
		result.Error = fmt.Sprintf("unknown service %q", service)
		return result
	}

	if timeout <= 0 {
		timeout = ep.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	payload, err := ep.breaker.Execute(func() (interface{}, error) {
		return c.post(callCtx, ep, operation, params)
	})
	result.Latency = time.Since(start)

	if err != nil {
		result.ErrorKind, result.Error = classify(err)
		c.health.Record(service, false, result.Error, result.Latency)

		c.logger.WithFields(map[string]interface{}{
			"service":    service,
			"operation":  operation,
			"error_kind": result.ErrorKind,
			"error":      result.Error,
			"latency":    result.Latency,
		}).Warn("Service call failed")

		return result
	}

	result.Success = true
	result.Payload = payload.([]byte)
	c.health.Record(service, true, "", result.Latency)
	return result
}

// Ping checks a collaborator's health endpoint. Used during cycle
// initialization and by the scheduled health probe.
func (c *Caller) Ping(ctx context.Context, service contracts.ServiceName) contracts.ServiceCallResult {
	result := contracts.ServiceCallResult{Service: service, Operation: "health"}

	ep, ok := c.endpoints[service]
	if !ok {
		result.ErrorKind = contracts.ErrKindUnreachable
		result.Error = fmt.Sprintf("unknown service %q", service)
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, ep.timeout)
	defer cancel()

	start := time.Now()
	resp, err := ep.client.Get(callCtx, ep.baseURL+"/health")
	result.Latency = time.Since(start)

	if err != nil {
		result.ErrorKind, result.Error = classify(err)
		c.health.Record(service, false, result.Error, result.Latency)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.ErrorKind = contracts.ErrKindUpstreamFault
		result.Error = fmt.Sprintf("health returned %d", resp.StatusCode)
		c.health.Record(service, false, result.Error, result.Latency)
		return result
	}

	result.Success = true
	c.health.Record(service, true, "", result.Latency)
	return result
}

// statusError carries a non-2xx response through the breaker so it can
// be classified afterwards.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func (c *Caller) post(ctx context.Context, ep *endpoint, operation string, params interface{}) ([]byte, error) {
	url := fmt.Sprintf("%s/%s", ep.baseURL, operation)

	if params == nil {
		params = struct{}{}
	}

	resp, err := ep.client.PostJSON(ctx, url, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: truncateBody(body)}
	}

	return body, nil
}

// classify maps a call failure onto the error taxonomy.
func classify(err error) (contracts.ErrorKind, string) {
	var se *statusError
	if errors.As(err, &se) {
		if se.code >= 500 {
			return contracts.ErrKindUpstreamFault, se.Error()
		}
		return contracts.ErrKindRejected, se.Error()
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return contracts.ErrKindUnreachable, "circuit breaker open"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return contracts.ErrKindTimeout, err.Error()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return contracts.ErrKindTimeout, err.Error()
	}

	return contracts.ErrKindUnreachable, err.Error()
}

// DecodeResult unmarshals a successful call payload into dest. Decode
// failures downgrade the result to malformed_response in place.
func DecodeResult(result *contracts.ServiceCallResult, dest interface{}) bool {
	if !result.Success {
		return false
	}
	if err := json.Unmarshal(result.Payload, dest); err != nil {
		result.Success = false
		result.ErrorKind = contracts.ErrKindMalformedResponse
		result.Error = fmt.Sprintf("decode %s/%s: %v", result.Service, result.Operation, err)
		return false
	}
	return true
}

func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
