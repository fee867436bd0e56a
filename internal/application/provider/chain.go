// Package provider runs one model capability call against an ordered list of
// backends with bounded per-backend retry.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/application/port/output"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/outcome"
)

// Chain is stateless across calls and safe for concurrent use.
type Chain struct {
	attemptTimeout time.Duration
	retryDelay     time.Duration
	logger         app.Logger
	metrics        output.MetricsRecorder
}

// Option configures a Chain
type Option func(*Chain)

// WithAttemptTimeout bounds every single attempt. A timed out attempt counts
// against the backend's budget like any other failure. Zero disables it.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Chain) { c.attemptTimeout = d }
}

// WithRetryDelay waits between attempts against the same backend
func WithRetryDelay(d time.Duration) Option {
	return func(c *Chain) { c.retryDelay = d }
}

// WithLogger sets the logger
func WithLogger(l app.Logger) Option {
	return func(c *Chain) { c.logger = l }
}

// WithMetrics sets the metrics recorder
func WithMetrics(r output.MetricsRecorder) Option {
	return func(c *Chain) { c.metrics = r }
}

// NewChain creates a provider chain
func NewChain(opts ...Option) *Chain {
	c := &Chain{
		logger:  app.NopLogger(),
		metrics: output.NopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type backendFailure struct {
	name string
	kind outcome.ErrorKind
	err  error
}

// Call tries each backend in order, up to maxAttemptsPerBackend times each,
// and returns the first success. Unavailable backends are skipped without
// consuming an attempt. When every backend is exhausted the failure message
// lists the last error of each backend in order.
func (c *Chain) Call(ctx context.Context, req output.AgentRequest, backends []output.AgentGateway, maxAttemptsPerBackend int) outcome.Outcome[*output.AgentResponse] {
	if len(backends) == 0 {
		return outcome.Failure[*output.AgentResponse](outcome.BackendUnavailable, "no backends configured")
	}
	if maxAttemptsPerBackend < 1 {
		return outcome.Failure[*output.AgentResponse](outcome.InvalidInput,
			fmt.Sprintf("maxAttemptsPerBackend must be >= 1, got %d", maxAttemptsPerBackend))
	}

	failures := make([]backendFailure, 0, len(backends))

	for _, backend := range backends {
		name := backend.Name()

		if err := backend.CheckAvailable(); err != nil {
			c.logger.Warn("backend %s unavailable, skipping: %v", name, err)
			c.metrics.BackendSkipped(name)
			failures = append(failures, backendFailure{name: name, kind: outcome.BackendUnavailable, err: err})
			continue
		}

		var last error
		for attempt := 1; attempt <= maxAttemptsPerBackend; attempt++ {
			if err := ctx.Err(); err != nil {
				return cancelled(err)
			}

			resp, err := c.attempt(ctx, backend, req)
			if err == nil {
				c.logger.Debug("backend %s succeeded on attempt %d", name, attempt)
				return outcome.Success(resp)
			}
			if ctx.Err() != nil {
				return cancelled(ctx.Err())
			}

			last = err
			kind := outcome.KindOf(err)
			c.logger.Warn("backend %s attempt %d/%d failed (%s): %v", name, attempt, maxAttemptsPerBackend, kind, err)
			if !kind.Retryable() {
				break
			}
			if attempt < maxAttemptsPerBackend && c.retryDelay > 0 {
				if err := sleep(ctx, c.retryDelay); err != nil {
					return cancelled(err)
				}
			}
		}
		failures = append(failures, backendFailure{name: name, kind: outcome.KindOf(last), err: last})
	}

	return aggregate(failures)
}

func (c *Chain) attempt(ctx context.Context, backend output.AgentGateway, req output.AgentRequest) (*output.AgentResponse, error) {
	attemptCtx := ctx
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := backend.Execute(attemptCtx, req)
	elapsed := time.Since(start)

	if err == nil && resp == nil {
		err = errors.New("backend returned no response")
	}
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		err = outcome.Wrap(outcome.TransientFailure, err, fmt.Sprintf("attempt timed out after %s", c.attemptTimeout))
	}
	c.metrics.ProviderAttempt(backend.Name(), err, elapsed)
	if err != nil {
		return nil, err
	}

	if resp.Backend == "" {
		resp.Backend = backend.Name()
	}
	if resp.Duration == 0 {
		resp.Duration = elapsed
	}
	return resp, nil
}

// aggregate keeps the last error of every backend, in order. The kind is
// BackendUnavailable or InvalidInput only when every backend failed that way.
func aggregate(failures []backendFailure) outcome.Outcome[*output.AgentResponse] {
	parts := make([]string, 0, len(failures))
	kind := failures[0].kind
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.name, f.err))
		if f.kind != kind {
			kind = outcome.TransientFailure
		}
	}
	if kind == outcome.MergeFailed || kind == outcome.ValidationFailed {
		kind = outcome.TransientFailure
	}
	return outcome.Failure[*output.AgentResponse](kind, "all backends failed: "+strings.Join(parts, "; "))
}

func cancelled(err error) outcome.Outcome[*output.AgentResponse] {
	return outcome.Failure[*output.AgentResponse](outcome.TransientFailure, fmt.Sprintf("provider call cancelled: %v", err))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
